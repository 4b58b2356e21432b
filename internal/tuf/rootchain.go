/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TrustState is the chain of roots accepted during one session. Only the
// last entry is authoritative.
type TrustState struct {
	Roots []*Root
}

// Current returns the terminal root.
func (s *TrustState) Current() *Root {
	return s.Roots[len(s.Roots)-1]
}

// Version returns the version of the terminal root.
func (s *TrustState) Version() int {
	return s.Current().Version
}

// VerifyRootChain establishes the terminal root of a repository. It starts
// from opts.TrustedRoot or 1.root.json and walks N+1.root.json until the
// repository has no newer root. The trust state never advances past a root
// that fails cross-signing.
func VerifyRootChain(ctx context.Context, f Fetcher, opts Options) (*TrustState, error) {
	if f == nil {
		return nil, withRepo(newError(KindMissingRepo, RoleRoot, nil), opts.Repo)
	}
	state, err := verifyRootChain(ctx, f, opts, opts.Limits.withDefaults(opts.Repo))
	if err != nil {
		return nil, withRepo(err, opts.Repo)
	}
	return state, nil
}

func verifyRootChain(ctx context.Context, f Fetcher, opts Options, limits Limits) (*TrustState, error) {
	logger := opts.logger()

	raw := opts.TrustedRoot
	if len(raw) == 0 {
		var err error
		raw, err = f.FetchRole(ctx, RoleRoot, 1, limits.Root)
		if err != nil {
			if isNotFound(err) {
				return nil, newError(KindMissingRepo, RoleRoot, err)
			}
			return nil, fetchError(RoleRoot, err)
		}
	}

	root, err := ParseRoot(raw, opts.parse())
	if err != nil {
		return nil, err
	}
	logIgnoredKeys(logger, root)
	if _, err := VerifyThreshold(root.signed, RoleRoot, root, opts.Encoding); err != nil {
		return nil, err
	}
	state := &TrustState{Roots: []*Root{root}}

	for i := 0; i < opts.maxRootRotations(); i++ {
		next := state.Version() + 1
		raw, err := f.FetchRole(ctx, RoleRoot, next, limits.Root)
		if err != nil {
			if isNotFound(err) {
				break
			}
			return nil, fetchError(RoleRoot, err)
		}

		candidate, err := rotate(state.Current(), raw, next, opts)
		if err != nil {
			logger.WithFields(logrus.Fields{"from": state.Version(), "to": next}).Warnf("root rotation rejected: %v", err)
			return nil, err
		}
		logger.WithField("version", next).Debug("root rotated")
		state.Roots = append(state.Roots, candidate)
	}

	if current := state.Current(); current.Expired(opts.now()) {
		return nil, newError(KindExpiredMetadata, RoleRoot, fmt.Errorf("root version %d expired at %s", current.Version, current.Expires))
	}
	return state, nil
}

// rotate accepts raw as root version next only if it is signed by a
// threshold of trusted's root keys and by a threshold of its own.
func rotate(trusted *Root, raw []byte, next int, opts Options) (*Root, error) {
	candidate, err := ParseRoot(raw, opts.parse())
	if err != nil {
		return nil, err
	}
	logIgnoredKeys(opts.logger(), candidate)
	if candidate.Version != next {
		return nil, newError(KindVersionMismatch, RoleRoot, fmt.Errorf("%s carries version %d", RoleFileName(RoleRoot, next), candidate.Version))
	}
	if _, err := VerifyThreshold(candidate.signed, RoleRoot, trusted, opts.Encoding); err != nil {
		return nil, newError(KindRootRotationFailure, RoleRoot, fmt.Errorf("version %d not signed by version %d keys: %w", next, trusted.Version, err))
	}
	if _, err := VerifyThreshold(candidate.signed, RoleRoot, candidate, opts.Encoding); err != nil {
		return nil, newError(KindRootRotationFailure, RoleRoot, fmt.Errorf("version %d not signed by its own keys: %w", next, err))
	}
	return candidate, nil
}

func logIgnoredKeys(logger logrus.FieldLogger, root *Root) {
	for _, id := range root.IgnoredKeys {
		logger.WithFields(logrus.Fields{"version": root.Version, "keyid": id}).Warn("ignoring unsupported key or key whose id does not match its content")
	}
}
