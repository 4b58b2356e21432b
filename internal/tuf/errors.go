/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kentakayama/uptane-trust/internal/domain"
)

// Kind classifies why a verification step rejected its input.
type Kind int

const (
	KindTargetHashMismatch Kind = iota + 1
	KindOversizedTarget
	KindExpiredMetadata
	KindUnmetThreshold
	KindIllegalThreshold
	KindMissingRepo
	KindRootRotationFailure
	KindInconsistent
	KindInvalidMetadata
	KindNonUniqueSignatures
	KindUnsupportedAlgorithm
	KindVersionMismatch
	KindLengthOrHashMismatch
	KindMetadataFetchFailure
	KindTargetNotFound
	KindBadHardwareID
	KindDuplicateEcuTarget
	KindTargetFetchFailure
)

var kindNames = map[Kind]string{
	KindTargetHashMismatch:   "TargetHashMismatch",
	KindOversizedTarget:      "OversizedTarget",
	KindExpiredMetadata:      "ExpiredMetadata",
	KindUnmetThreshold:       "UnmetThreshold",
	KindIllegalThreshold:     "IllegalThreshold",
	KindMissingRepo:          "MissingRepo",
	KindRootRotationFailure:  "RootRotationFailure",
	KindInconsistent:         "Inconsistent",
	KindInvalidMetadata:      "InvalidMetadata",
	KindNonUniqueSignatures:  "NonUniqueSignatures",
	KindUnsupportedAlgorithm: "UnsupportedAlgorithm",
	KindVersionMismatch:      "VersionMismatch",
	KindLengthOrHashMismatch: "LengthOrHashMismatch",
	KindMetadataFetchFailure: "MetadataFetchFailure",
	KindTargetNotFound:       "TargetNotFound",
	KindBadHardwareID:        "BadHardwareId",
	KindDuplicateEcuTarget:   "DuplicateEcuTarget",
	KindTargetFetchFailure:   "TargetFetchFailure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// roleScoped reports whether the code of k carries a role suffix.
func (k Kind) roleScoped() bool {
	switch k {
	case KindExpiredMetadata, KindUnmetThreshold, KindIllegalThreshold, KindInvalidMetadata,
		KindNonUniqueSignatures, KindUnsupportedAlgorithm, KindVersionMismatch,
		KindLengthOrHashMismatch, KindMetadataFetchFailure:
		return true
	}
	return false
}

// TrustError is the typed result of every failed verification step.
type TrustError struct {
	Kind  Kind
	Role  Role
	Repo  RepoKind
	Cause error
}

func newError(kind Kind, role Role, cause error) *TrustError {
	return &TrustError{Kind: kind, Role: role, Cause: cause}
}

// Code returns the machine readable reason, e.g. "UnmetThreshold::Targets".
func (e *TrustError) Code() string {
	switch {
	case e.Kind == KindMissingRepo:
		return e.Kind.String() + "::" + e.Repo.Suffix()
	case e.Kind.roleScoped() && e.Role != 0:
		return e.Kind.String() + "::" + e.Role.String()
	default:
		return e.Kind.String()
	}
}

// Message returns the human readable reason.
func (e *TrustError) Message() string {
	role := strings.ToLower(e.Role.String())
	switch e.Kind {
	case KindTargetHashMismatch:
		return "The target's calculated hash did not match the hash in the metadata."
	case KindOversizedTarget:
		return "The target's size was greater than the size in the metadata."
	case KindExpiredMetadata:
		return fmt.Sprintf("The %s metadata was expired.", role)
	case KindUnmetThreshold:
		return fmt.Sprintf("The %s metadata had an unmet threshold.", role)
	case KindIllegalThreshold:
		return fmt.Sprintf("The role %s had an illegal signature threshold.", role)
	case KindMissingRepo:
		return fmt.Sprintf("The %s repo is missing.", strings.ToLower(e.Repo.Suffix()))
	case KindRootRotationFailure:
		return "The root metadata could not be rotated to a newer version."
	case KindInconsistent:
		return "The target metadata in the Image and Director repos do not match."
	case KindInvalidMetadata:
		return fmt.Sprintf("The %s metadata was malformed.", role)
	case KindNonUniqueSignatures:
		return fmt.Sprintf("The %s metadata contained more than one signature per key.", role)
	case KindUnsupportedAlgorithm:
		return fmt.Sprintf("The %s metadata used an unsupported signature method.", role)
	case KindVersionMismatch:
		return fmt.Sprintf("The %s metadata version did not match the expected version.", role)
	case KindLengthOrHashMismatch:
		return fmt.Sprintf("The %s metadata did not match its pinned length or hashes.", role)
	case KindMetadataFetchFailure:
		return fmt.Sprintf("The %s metadata could not be fetched.", role)
	case KindTargetNotFound:
		return "No target was declared for the ECU."
	case KindBadHardwareID:
		return "The target's hardware identifier did not match the ECU."
	case KindDuplicateEcuTarget:
		return "More than one target was declared for the ECU."
	case KindTargetFetchFailure:
		return "The target could not be fetched."
	}
	return e.Kind.String()
}

func (e *TrustError) Error() string {
	if e.Cause == nil {
		return e.Message()
	}
	return e.Message() + ": " + e.Cause.Error()
}

func (e *TrustError) Unwrap() error { return e.Cause }

// Is matches another *TrustError by Kind, and by Role and Repo when the
// target sets them.
func (e *TrustError) Is(target error) bool {
	t, ok := target.(*TrustError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Role != 0 && t.Role != e.Role {
		return false
	}
	if t.Repo != 0 && t.Repo != e.Repo {
		return false
	}
	return true
}

// Retryable reports whether the failure was caused by the transport and the
// same request may succeed later.
func (e *TrustError) Retryable() bool {
	return (e.Kind == KindMetadataFetchFailure || e.Kind == KindTargetFetchFailure) &&
		errors.Is(e.Cause, domain.ErrTransient)
}

// Sentinels usable with errors.Is.
var (
	ErrTargetHashMismatch   = &TrustError{Kind: KindTargetHashMismatch}
	ErrOversizedTarget      = &TrustError{Kind: KindOversizedTarget}
	ErrExpiredMetadata      = &TrustError{Kind: KindExpiredMetadata}
	ErrUnmetThreshold       = &TrustError{Kind: KindUnmetThreshold}
	ErrIllegalThreshold     = &TrustError{Kind: KindIllegalThreshold}
	ErrMissingRepo          = &TrustError{Kind: KindMissingRepo}
	ErrRootRotationFailure  = &TrustError{Kind: KindRootRotationFailure}
	ErrInconsistent         = &TrustError{Kind: KindInconsistent}
	ErrInvalidMetadata      = &TrustError{Kind: KindInvalidMetadata}
	ErrNonUniqueSignatures  = &TrustError{Kind: KindNonUniqueSignatures}
	ErrUnsupportedAlgorithm = &TrustError{Kind: KindUnsupportedAlgorithm}
	ErrVersionMismatch      = &TrustError{Kind: KindVersionMismatch}
	ErrLengthOrHashMismatch = &TrustError{Kind: KindLengthOrHashMismatch}
	ErrMetadataFetchFailure = &TrustError{Kind: KindMetadataFetchFailure}
	ErrTargetNotFound       = &TrustError{Kind: KindTargetNotFound}
	ErrBadHardwareID        = &TrustError{Kind: KindBadHardwareID}
	ErrDuplicateEcuTarget   = &TrustError{Kind: KindDuplicateEcuTarget}
	ErrTargetFetchFailure   = &TrustError{Kind: KindTargetFetchFailure}
)

// Causes attached to TrustError values.
var (
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	ErrUnsupportedMethod  = errors.New("unsupported signature method")
	ErrKeyMethodMismatch  = errors.New("signature method does not match key type")
	ErrMalformedKey       = errors.New("malformed public key")
	ErrNoSupportedHash    = errors.New("no supported hash algorithm declared")
)

// CodeOf returns the code of the outermost TrustError in err's chain, or ""
// when err is nil or carries no TrustError.
func CodeOf(err error) string {
	var te *TrustError
	if errors.As(err, &te) {
		return te.Code()
	}
	return ""
}

// AsTrustError returns the outermost TrustError in err's chain.
func AsTrustError(err error) (*TrustError, bool) {
	var te *TrustError
	ok := errors.As(err, &te)
	return te, ok
}

// withRepo stamps the repository on every TrustError in err's chain that
// does not already name one.
func withRepo(err error, repo RepoKind) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if te, ok := e.(*TrustError); ok && te.Repo == 0 {
			te.Repo = repo
		}
	}
	return err
}

// ParseCode is the inverse of Code. It returns a TrustError without a cause
// that matches, through errors.Is, every error carrying that code.
func ParseCode(code string) (*TrustError, error) {
	name, suffix, scoped := strings.Cut(code, "::")
	var kind Kind
	for k, n := range kindNames {
		if n == name {
			kind = k
			break
		}
	}
	if kind == 0 {
		return nil, fmt.Errorf("unknown error code %q", code)
	}

	te := &TrustError{Kind: kind}
	switch {
	case kind == KindMissingRepo:
		if !scoped {
			return nil, fmt.Errorf("error code %q names no repository", code)
		}
		repo, err := ParseRepoKind(suffix)
		if err != nil {
			return nil, err
		}
		te.Repo = repo
	case scoped:
		if !kind.roleScoped() {
			return nil, fmt.Errorf("error code %q takes no role", code)
		}
		role, err := ParseRole(suffix)
		if err != nil {
			return nil, err
		}
		te.Role = role
	}
	return te, nil
}
