/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// MinThreshold and MaxThreshold bound every role's declared threshold.
	MinThreshold = 1
	MaxThreshold = 1000
)

// ParseOptions fixes the encodings shared by publisher and verifier.
type ParseOptions struct {
	Encoding          Encoding
	SignatureEncoding SignatureEncoding
}

// Header holds the fields common to every role.
type Header struct {
	Type    string    `json:"_type"`
	Version int       `json:"version"`
	Expires time.Time `json:"expires"`
}

// Expired reports whether the document is no longer valid at now. A
// document expiring exactly at now is still valid.
func (h Header) Expired(now time.Time) bool {
	return now.After(h.Expires)
}

// Signed is a parsed metadata envelope. Body is the "signed" value exactly
// as received; signatures are checked over its canonical form.
type Signed struct {
	Role       Role
	Raw        []byte
	Body       json.RawMessage
	Signatures []Signature
}

// Envelope is the wire form of a signed document.
type Envelope struct {
	Signatures []WireSignature `json:"signatures"`
	Signed     json.RawMessage `json:"signed"`
}

// SignDocument canonicalizes signed and returns the envelope carrying one
// signature per signer.
func SignDocument(signed any, signers []*Signer, opts ParseOptions) (*Envelope, error) {
	body, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}
	canonical, err := CanonicalizeJSON(body, opts.Encoding)
	if err != nil {
		return nil, err
	}
	env := &Envelope{Signatures: []WireSignature{}, Signed: body}
	for _, s := range signers {
		sig, err := s.Sign(canonical)
		if err != nil {
			return nil, err
		}
		env.Signatures = append(env.Signatures, sig.Wire(opts.SignatureEncoding))
	}
	return env, nil
}

// ParseSigned decodes the envelope of a document expected to be of role.
func ParseSigned(raw []byte, role Role, opts ParseOptions) (*Signed, *Header, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, newError(KindInvalidMetadata, role, err)
	}
	if len(env.Signed) == 0 || string(env.Signed) == "null" {
		return nil, nil, newError(KindInvalidMetadata, role, errors.New(`missing "signed" object`))
	}

	var hdr Header
	if err := json.Unmarshal(env.Signed, &hdr); err != nil {
		return nil, nil, newError(KindInvalidMetadata, role, err)
	}
	if !strings.EqualFold(hdr.Type, role.String()) {
		return nil, nil, newError(KindInvalidMetadata, role, fmt.Errorf("_type %q is not %s", hdr.Type, role))
	}
	if hdr.Version < 1 {
		return nil, nil, newError(KindInvalidMetadata, role, fmt.Errorf("version %d is not positive", hdr.Version))
	}

	s := &Signed{Role: role, Raw: raw, Body: env.Signed}
	for _, sj := range env.Signatures {
		sig := Signature{KeyID: sj.KeyID, RawMethod: sj.Method}
		if m, err := ParseMethod(sj.Method); err == nil {
			sig.Method = m
		}
		// undecodable signature bytes count as an invalid signature
		if v, err := opts.SignatureEncoding.decode(sj.Sig); err == nil {
			sig.Value = v
		}
		s.Signatures = append(s.Signatures, sig)
	}
	return s, &hdr, nil
}

// PeekHeader returns the unverified role and header of a document.
func PeekHeader(raw []byte) (Role, *Header, error) {
	var env struct {
		Signed Header `json:"signed"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, nil, err
	}
	role, err := ParseRole(env.Signed.Type)
	if err != nil {
		return 0, nil, err
	}
	return role, &env.Signed, nil
}

// RoleKeys is a role's entry in root's "roles" object.
type RoleKeys struct {
	KeyIDs    []string
	Threshold int
}

// Root is the trust anchor of a repository.
type Root struct {
	Header
	ConsistentSnapshot bool
	// Keys holds only keys whose declared id matches the derived id and
	// whose type is supported.
	Keys  map[string]*Key
	Roles map[Role]RoleKeys
	// IgnoredKeys lists declared ids that were not loaded, sorted.
	IgnoredKeys []string

	signed *Signed
}

// Signed returns the envelope the root was parsed from.
func (r *Root) Signed() *Signed { return r.signed }

type rootJSON struct {
	ConsistentSnapshot bool                     `json:"consistent_snapshot"`
	Keys               map[string]PublicKeyJSON `json:"keys"`
	Roles              map[string]struct {
		KeyIDs    []string `json:"keyids"`
		Threshold int64    `json:"threshold"`
	} `json:"roles"`
}

// ParseRoot decodes root metadata. Thresholds are validated before any
// signature is looked at.
func ParseRoot(raw []byte, opts ParseOptions) (*Root, error) {
	s, hdr, err := ParseSigned(raw, RoleRoot, opts)
	if err != nil {
		return nil, err
	}

	var body rootJSON
	if err := json.Unmarshal(s.Body, &body); err != nil {
		return nil, newError(KindInvalidMetadata, RoleRoot, err)
	}

	roles := make(map[string]RoleKeys, len(body.Roles))
	for name, r := range body.Roles {
		roles[strings.ToLower(name)] = RoleKeys{KeyIDs: r.KeyIDs, Threshold: clampThreshold(r.Threshold)}
	}

	root := &Root{
		Header:             *hdr,
		ConsistentSnapshot: body.ConsistentSnapshot,
		Keys:               make(map[string]*Key, len(body.Keys)),
		Roles:              make(map[Role]RoleKeys, len(TopLevelRoles)),
		signed:             s,
	}
	for _, role := range TopLevelRoles {
		rk := roles[role.Name()]
		if rk.Threshold < MinThreshold || rk.Threshold > MaxThreshold {
			return nil, newError(KindIllegalThreshold, role, fmt.Errorf("threshold %d outside [%d, %d]", rk.Threshold, MinThreshold, MaxThreshold))
		}
		root.Roles[role] = rk
	}

	for id, kj := range body.Keys {
		key, err := ParseKey(kj.KeyType, kj.KeyVal.Public, opts.Encoding)
		if err != nil || key.ID != id {
			root.IgnoredKeys = append(root.IgnoredKeys, id)
			continue
		}
		root.Keys[id] = key
	}
	sort.Strings(root.IgnoredKeys)

	return root, nil
}

// clampThreshold keeps out-of-range int64 values out of range after the
// conversion to int.
func clampThreshold(t int64) int {
	switch {
	case t < 0:
		return -1
	case t > MaxThreshold:
		return MaxThreshold + 1
	}
	return int(t)
}

// MetaFile pins a version, and optionally length and hashes, of another
// metadata file.
type MetaFile struct {
	Version int    `json:"version"`
	Length  int64  `json:"length,omitempty"`
	Hashes  Hashes `json:"hashes,omitempty"`
}

// Check verifies raw against the pinned length and hashes, where declared.
func (m MetaFile) Check(raw []byte) error {
	if m.Length > 0 && int64(len(raw)) != m.Length {
		return fmt.Errorf("length %d, expected %d", len(raw), m.Length)
	}
	if len(m.Hashes) > 0 {
		return m.Hashes.Verify(raw)
	}
	return nil
}

// Timestamp pins the current snapshot.
type Timestamp struct {
	Header
	Meta map[string]MetaFile

	signed *Signed
}

func (t *Timestamp) Signed() *Signed { return t.signed }

// SnapshotMeta returns the "snapshot.json" entry.
func (t *Timestamp) SnapshotMeta() (MetaFile, bool) {
	m, ok := t.Meta[RoleSnapshot.File()]
	return m, ok
}

func ParseTimestamp(raw []byte, opts ParseOptions) (*Timestamp, error) {
	s, hdr, err := ParseSigned(raw, RoleTimestamp, opts)
	if err != nil {
		return nil, err
	}
	var body struct {
		Meta map[string]MetaFile `json:"meta"`
	}
	if err := json.Unmarshal(s.Body, &body); err != nil {
		return nil, newError(KindInvalidMetadata, RoleTimestamp, err)
	}
	return &Timestamp{Header: *hdr, Meta: body.Meta, signed: s}, nil
}

// Snapshot pins targets and every published root version.
type Snapshot struct {
	Header
	Meta map[string]MetaFile

	signed *Signed
}

func (s *Snapshot) Signed() *Signed { return s.signed }

// TargetsMeta returns the "targets.json" entry.
func (s *Snapshot) TargetsMeta() (MetaFile, bool) {
	m, ok := s.Meta[RoleTargets.File()]
	return m, ok
}

func ParseSnapshot(raw []byte, opts ParseOptions) (*Snapshot, error) {
	s, hdr, err := ParseSigned(raw, RoleSnapshot, opts)
	if err != nil {
		return nil, err
	}
	var body struct {
		Meta map[string]MetaFile `json:"meta"`
	}
	if err := json.Unmarshal(s.Body, &body); err != nil {
		return nil, newError(KindInvalidMetadata, RoleSnapshot, err)
	}
	return &Snapshot{Header: *hdr, Meta: body.Meta, signed: s}, nil
}

// Targets lists the target files of a repository.
type Targets struct {
	Header
	Targets map[string]*TargetFile

	signed *Signed
}

func (t *Targets) Signed() *Signed { return t.signed }

// Paths returns the declared target paths, sorted.
func (t *Targets) Paths() []string {
	paths := make([]string, 0, len(t.Targets))
	for p := range t.Targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func ParseTargets(raw []byte, opts ParseOptions) (*Targets, error) {
	s, hdr, err := ParseSigned(raw, RoleTargets, opts)
	if err != nil {
		return nil, err
	}
	var body struct {
		Targets map[string]*TargetFile `json:"targets"`
	}
	if err := json.Unmarshal(s.Body, &body); err != nil {
		return nil, newError(KindInvalidMetadata, RoleTargets, err)
	}
	for path, t := range body.Targets {
		if t == nil {
			return nil, newError(KindInvalidMetadata, RoleTargets, fmt.Errorf("target %q is null", path))
		}
		if t.Length < 0 {
			return nil, newError(KindInvalidMetadata, RoleTargets, fmt.Errorf("target %q has negative length", path))
		}
		if len(t.Hashes) == 0 {
			return nil, newError(KindInvalidMetadata, RoleTargets, fmt.Errorf("target %q: %w", path, ErrNoSupportedHash))
		}
		t.Path = path
	}
	return &Targets{Header: *hdr, Targets: body.Targets, signed: s}, nil
}
