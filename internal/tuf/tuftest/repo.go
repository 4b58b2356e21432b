/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package tuftest publishes signed repositories for tests and for the
// vector generator of the command line tool.
package tuftest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/kentakayama/uptane-trust/internal/tuf"
)

const (
	// DefaultECUSerial and DefaultHardwareID identify the ECU Director
	// targets are addressed to.
	DefaultECUSerial  = "CA:FE:A6:D2:84:9D"
	DefaultHardwareID = "primary-hw-ID-001"

	DefaultTargetPath = "file.txt"
)

var (
	DefaultTargetContent = []byte("wat wat wat\n")

	ValidUntil   = time.Date(2038, time.January, 19, 3, 14, 6, 0, time.UTC)
	ExpiredSince = time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)
	// Now lies between ExpiredSince and ValidUntil.
	Now = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
)

// Alteration changes the stored bytes of a target after its metadata has
// been written.
type Alteration int

const (
	AlterNone Alteration = iota
	// AlterFlipFirstByte keeps the length and breaks every hash.
	AlterFlipFirstByte
	// AlterAppendNewline makes the content one byte longer than declared.
	AlterAppendNewline
)

func (a Alteration) apply(b []byte) []byte {
	out := slices.Clone(b)
	switch a {
	case AlterFlipFirstByte:
		if len(out) > 0 {
			out[0] ^= 0x01
		}
	case AlterAppendNewline:
		out = append(out, '\n')
	}
	return out
}

// Target is a target published by a repository.
type Target struct {
	Path    string
	Content []byte
}

// ECU receives Director targets through custom.ecuIdentifiers.
type ECU struct {
	Serial     string
	HardwareID string
}

// RepoSpec describes one repository to publish. Per-version slices are
// indexed by root version minus one; missing entries default to a single
// Ed25519 key, no threshold modification and no skipped signature.
type RepoSpec struct {
	// Error is the code verification of this repository is expected to
	// fail with, empty on success.
	Error string

	Expired tuf.Role

	RootKeys      [][]KeyKind
	TargetsKeys   [][]KeyKind
	TimestampKeys [][]KeyKind
	SnapshotKeys  [][]KeyKind

	// ThresholdMod is added to the number of a role's keys to give its
	// declared threshold.
	ThresholdMod map[tuf.Role][]int
	// SignSkip is the number of a role's keys that do not sign.
	SignSkip map[tuf.Role][]int
	// RootCrossSignSkip lists root versions not signed by their
	// predecessor's keys.
	RootCrossSignSkip []int
	// BadKeyIDs is the role whose key ids are declared wrongly.
	BadKeyIDs tuf.Role
	// TargetsSignedBy is the root version whose targets keys sign
	// targets.json. Zero means the last one.
	TargetsSignedBy int

	Targets     []Target
	AlterTarget Alteration
	ECUs        []ECU

	Encoding          tuf.Encoding
	SignatureEncoding tuf.SignatureEncoding
}

func (s RepoSpec) versions() int {
	return max(1, len(s.RootKeys))
}

func keysAt(kinds [][]KeyKind, idx int) []KeyKind {
	if idx < len(kinds) && len(kinds[idx]) > 0 {
		return kinds[idx]
	}
	return []KeyKind{Ed25519}
}

func intAt(m map[tuf.Role][]int, role tuf.Role, idx int) int {
	v := m[role]
	if idx < len(v) {
		return v[idx]
	}
	return 0
}

func (s RepoSpec) kinds(role tuf.Role, idx int) []KeyKind {
	switch role {
	case tuf.RoleRoot:
		return keysAt(s.RootKeys, idx)
	case tuf.RoleTargets:
		return keysAt(s.TargetsKeys, idx)
	case tuf.RoleTimestamp:
		return keysAt(s.TimestampKeys, idx)
	case tuf.RoleSnapshot:
		return keysAt(s.SnapshotKeys, idx)
	}
	return nil
}

func (s RepoSpec) targets() []Target {
	if len(s.Targets) > 0 {
		return s.Targets
	}
	return []Target{{Path: DefaultTargetPath, Content: DefaultTargetContent}}
}

func (s RepoSpec) expires(role tuf.Role) string {
	if s.Expired == role {
		return ExpiredSince.Format(time.RFC3339)
	}
	return ValidUntil.Format(time.RFC3339)
}

// Repository is a published repository: metadata files by name and stored
// target content by path.
type Repository struct {
	Kind     tuf.RepoKind
	Spec     RepoSpec
	Files    map[string][]byte
	Contents map[string][]byte
	// PublicKeys maps file names such as "1.root-1.pub" to the public
	// material of every generated key.
	PublicKeys map[string]string
}

// RootVersions returns the number of published root versions.
func (r *Repository) RootVersions() int {
	return r.Spec.versions()
}

// File returns a metadata file, failing loudly when it was not published.
func (r *Repository) File(name string) []byte {
	b, ok := r.Files[name]
	if !ok {
		panic(fmt.Sprintf("tuftest: %s repository has no %s", r.Kind, name))
	}
	return b
}

type roleSigners struct {
	signers []*tuf.Signer
	ids     []string
}

type builder struct {
	spec RepoSpec
	kind tuf.RepoKind
	opts tuf.ParseOptions
	repo *Repository
	// keys[idx][role]
	keys []map[tuf.Role]roleSigners
}

// Build publishes the repository described by spec.
func Build(kind tuf.RepoKind, spec RepoSpec) (*Repository, error) {
	b := &builder{
		spec: spec,
		kind: kind,
		opts: tuf.ParseOptions{Encoding: spec.Encoding, SignatureEncoding: spec.SignatureEncoding},
		repo: &Repository{
			Kind:       kind,
			Spec:       spec,
			Files:      map[string][]byte{},
			Contents:   map[string][]byte{},
			PublicKeys: map[string]string{},
		},
	}
	if err := b.makeKeys(); err != nil {
		return nil, err
	}

	n := spec.versions()
	roots := make([][]byte, 0, n)
	for idx := 0; idx < n; idx++ {
		raw, err := b.makeRoot(idx)
		if err != nil {
			return nil, fmt.Errorf("root version %d: %w", idx+1, err)
		}
		roots = append(roots, raw)
		b.repo.Files[tuf.RoleFileName(tuf.RoleRoot, idx+1)] = raw
	}
	b.repo.Files[tuf.RoleRoot.File()] = roots[n-1]

	signedBy := n - 1
	if spec.TargetsSignedBy > 0 {
		signedBy = spec.TargetsSignedBy - 1
	}
	targets, err := b.makeTargets(signedBy)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	b.repo.Files[tuf.RoleTargets.File()] = targets

	snapshot, err := b.makeSnapshot(n-1, roots, targets)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	b.repo.Files[tuf.RoleSnapshot.File()] = snapshot

	timestamp, err := b.makeTimestamp(n-1, snapshot)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	b.repo.Files[tuf.RoleTimestamp.File()] = timestamp

	for _, t := range spec.targets() {
		b.repo.Contents[t.Path] = spec.AlterTarget.apply(t.Content)
	}
	return b.repo, nil
}

func (b *builder) makeKeys() error {
	for idx := 0; idx < b.spec.versions(); idx++ {
		byRole := make(map[tuf.Role]roleSigners, len(tuf.TopLevelRoles))
		for _, role := range tuf.TopLevelRoles {
			var rs roleSigners
			for i, kind := range b.spec.kinds(role, idx) {
				name := fmt.Sprintf("%d.%s-%d", idx+1, role.Name(), i+1)
				priv, err := newKey(kind, b.kind.Dir()+"/"+name)
				if err != nil {
					return err
				}
				s, err := tuf.NewSigner(priv, b.spec.Encoding)
				if err != nil {
					return err
				}
				id := s.Key.ID
				if b.spec.BadKeyIDs == role {
					if id, err = alteredKeyID(s.Key, b.spec.Encoding); err != nil {
						return err
					}
				}
				rs.signers = append(rs.signers, s)
				rs.ids = append(rs.ids, id)
				b.repo.PublicKeys[name+".pub"] = s.Key.Public
			}
			byRole[role] = rs
		}
		b.keys = append(b.keys, byRole)
	}
	return nil
}

// alteredKeyID hashes the key id source with its first byte flipped.
func alteredKeyID(k *tuf.Key, enc tuf.Encoding) (string, error) {
	src, err := tuf.KeyIDSource(k.DeclaredType, k.Public, enc)
	if err != nil {
		return "", err
	}
	src[0] ^= 0x01
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:]), nil
}

func (b *builder) makeRoot(idx int) ([]byte, error) {
	keys := map[string]any{}
	roles := map[string]any{}
	for _, role := range tuf.TopLevelRoles {
		rs := b.keys[idx][role]
		for i, s := range rs.signers {
			keys[rs.ids[i]] = s.Key.JSON()
		}
		roles[role.Name()] = map[string]any{
			"keyids":    rs.ids,
			"threshold": len(rs.signers) + intAt(b.spec.ThresholdMod, role, idx),
		}
	}
	signed := map[string]any{
		"_type":               tuf.RoleRoot.String(),
		"consistent_snapshot": false,
		"expires":             b.spec.expires(tuf.RoleRoot),
		"version":             idx + 1,
		"keys":                keys,
		"roles":               roles,
	}

	own := b.keys[idx][tuf.RoleRoot].signers
	signers := slices.Clone(own[:len(own)-intAt(b.spec.SignSkip, tuf.RoleRoot, idx)])
	if idx > 0 && !slices.Contains(b.spec.RootCrossSignSkip, idx+1) {
		signers = append(signers, b.keys[idx-1][tuf.RoleRoot].signers...)
	}
	return b.sign(signed, signers)
}

func (b *builder) roleSigners(role tuf.Role, idx int) []*tuf.Signer {
	own := b.keys[idx][role].signers
	return own[:len(own)-intAt(b.spec.SignSkip, role, idx)]
}

func (b *builder) makeTargets(idx int) ([]byte, error) {
	files := map[string]any{}
	for _, t := range b.spec.targets() {
		entry := map[string]any{
			"length": len(t.Content),
			"hashes": tuf.ComputeHashes(t.Content),
		}
		if len(b.spec.ECUs) > 0 {
			ecus := map[string]any{}
			for _, e := range b.spec.ECUs {
				ecus[e.Serial] = map[string]any{"hardwareId": e.HardwareID}
			}
			entry["custom"] = map[string]any{"ecuIdentifiers": ecus}
		}
		files[t.Path] = entry
	}
	signed := map[string]any{
		"_type":          tuf.RoleTargets.String(),
		"expires":        b.spec.expires(tuf.RoleTargets),
		"version":        1,
		"targets":        files,
		"releaseCounter": 1,
	}
	return b.sign(signed, b.roleSigners(tuf.RoleTargets, idx))
}

func metaEntry(version int, raw []byte) map[string]any {
	return map[string]any{
		"version": version,
		"length":  len(raw),
		"hashes":  tuf.ComputeHashes(raw),
	}
}

func (b *builder) makeSnapshot(idx int, roots [][]byte, targets []byte) ([]byte, error) {
	meta := map[string]any{
		tuf.RoleTargets.File(): map[string]any{"version": 1},
	}
	for i, raw := range roots {
		meta[tuf.RoleFileName(tuf.RoleRoot, i+1)] = metaEntry(i+1, raw)
	}
	meta[tuf.RoleRoot.File()] = metaEntry(len(roots), roots[len(roots)-1])

	signed := map[string]any{
		"_type":   tuf.RoleSnapshot.String(),
		"expires": b.spec.expires(tuf.RoleSnapshot),
		"version": 1,
		"meta":    meta,
	}
	return b.sign(signed, b.roleSigners(tuf.RoleSnapshot, idx))
}

func (b *builder) makeTimestamp(idx int, snapshot []byte) ([]byte, error) {
	signed := map[string]any{
		"_type":   tuf.RoleTimestamp.String(),
		"expires": b.spec.expires(tuf.RoleTimestamp),
		"version": 1,
		"meta": map[string]any{
			tuf.RoleSnapshot.File(): metaEntry(1, snapshot),
		},
	}
	return b.sign(signed, b.roleSigners(tuf.RoleTimestamp, idx))
}

func (b *builder) sign(signed map[string]any, signers []*tuf.Signer) ([]byte, error) {
	env, err := tuf.SignDocument(signed, signers, b.opts)
	if err != nil {
		return nil, err
	}
	return Pretty(env)
}

// Pretty writes v the way the publisher does: sorted keys, two space
// indentation and a trailing newline.
func Pretty(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
