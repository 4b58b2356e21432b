/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuftest

import (
	"fmt"

	"github.com/kentakayama/uptane-trust/internal/tuf"
)

// Stage is where a vector's expected failure surfaces.
type Stage int

const (
	// StageMetadata failures are returned by metadata verification.
	StageMetadata Stage = iota
	// StageContent failures are returned when the payload is checked.
	StageContent
)

// Vector is a pair of repositories and the outcome of verifying an update
// for the default ECU against them. A nil spec is a missing repository.
type Vector struct {
	Name        string
	Description string
	Director    *RepoSpec
	Image       *RepoSpec
	// Expect is the error code of the outcome, empty on success.
	Expect string
	Stage  Stage
}

// Success reports whether the update is expected to be accepted.
func (v Vector) Success() bool {
	return v.Expect == ""
}

// Built holds the published repositories of a vector.
type Built struct {
	Vector   Vector
	Director *Repository
	Image    *Repository
}

// Build publishes both repositories of the vector.
func (v Vector) Build() (*Built, error) {
	out := &Built{Vector: v}
	if v.Director != nil {
		spec := *v.Director
		if len(spec.ECUs) == 0 {
			spec.ECUs = []ECU{{Serial: DefaultECUSerial, HardwareID: DefaultHardwareID}}
		}
		r, err := Build(tuf.RepoDirector, spec)
		if err != nil {
			return nil, fmt.Errorf("vector %s director: %w", v.Name, err)
		}
		out.Director = r
	}
	if v.Image != nil {
		r, err := Build(tuf.RepoImage, *v.Image)
		if err != nil {
			return nil, fmt.Errorf("vector %s image: %w", v.Name, err)
		}
		out.Image = r
	}
	return out, nil
}

// Fetchers returns fresh fetchers for both repositories. A missing
// repository yields a nil fetcher.
func (b *Built) Fetchers() (director, image tuf.Fetcher) {
	if b.Director != nil {
		director = NewMemoryFetcher(b.Director)
	}
	if b.Image != nil {
		image = NewMemoryFetcher(b.Image)
	}
	return director, image
}

func ptr(s RepoSpec) *RepoSpec { return &s }

// ValidEd25519 is a repository with one Ed25519 key per role.
func ValidEd25519() RepoSpec { return RepoSpec{} }

// ValidRSA is a repository with one 2048 bit RSA-PSS key per role.
func ValidRSA() RepoSpec {
	rsa := [][]KeyKind{{RSA}}
	return RepoSpec{RootKeys: rsa, TargetsKeys: rsa, TimestampKeys: rsa, SnapshotKeys: rsa}
}

// TargetHashMismatch stores content whose hashes differ from the
// declaration.
func TargetHashMismatch(base RepoSpec) RepoSpec {
	base.Error = tuf.KindTargetHashMismatch.String()
	base.AlterTarget = AlterFlipFirstByte
	return base
}

// OversizedTarget stores content one byte longer than declared.
func OversizedTarget(base RepoSpec) RepoSpec {
	base.Error = tuf.KindOversizedTarget.String()
	base.AlterTarget = AlterAppendNewline
	return base
}

// LongerTarget declares and stores a target one byte longer than the
// default one.
func LongerTarget() RepoSpec {
	content := append([]byte(nil), DefaultTargetContent...)
	return RepoSpec{Targets: []Target{{Path: DefaultTargetPath, Content: append(content, '\n')}}}
}

func code(kind tuf.Kind, role tuf.Role) string {
	return (&tuf.TrustError{Kind: kind, Role: role}).Code()
}

// Expired publishes role with an expiry in the past.
func Expired(role tuf.Role) RepoSpec {
	return RepoSpec{Error: code(tuf.KindExpiredMetadata, role), Expired: role}
}

func setKeys(s *RepoSpec, role tuf.Role, kinds [][]KeyKind) {
	switch role {
	case tuf.RoleRoot:
		s.RootKeys = kinds
	case tuf.RoleTargets:
		s.TargetsKeys = kinds
	case tuf.RoleTimestamp:
		s.TimestampKeys = kinds
	case tuf.RoleSnapshot:
		s.SnapshotKeys = kinds
	}
}

// UnmetThreshold gives role two keys and a threshold of two, and signs
// with only one of them.
func UnmetThreshold(role tuf.Role) RepoSpec {
	s := RepoSpec{
		Error:    code(tuf.KindUnmetThreshold, role),
		SignSkip: map[tuf.Role][]int{role: {1}},
	}
	setKeys(&s, role, [][]KeyKind{{Ed25519, Ed25519}})
	return s
}

// BadKeyIDs declares role's key ids wrongly. The keys are dropped, the
// signatures no longer count and the threshold is unmet.
func BadKeyIDs(role tuf.Role) RepoSpec {
	return RepoSpec{Error: code(tuf.KindUnmetThreshold, role), BadKeyIDs: role}
}

// ThresholdZero declares a threshold of zero for role.
func ThresholdZero(role tuf.Role) RepoSpec {
	return RepoSpec{
		Error:        code(tuf.KindIllegalThreshold, role),
		ThresholdMod: map[tuf.Role][]int{role: {-1}},
	}
}

// RootRotation publishes two root versions with fresh keys for every role.
func RootRotation() RepoSpec {
	two := [][]KeyKind{{Ed25519}, {Ed25519}}
	return RepoSpec{RootKeys: two, TargetsKeys: two, TimestampKeys: two, SnapshotKeys: two}
}

// StaleTargetsKeys rotates every role to new keys but signs targets.json
// with the version 1 targets key only.
func StaleTargetsKeys() RepoSpec {
	s := RootRotation()
	s.Error = code(tuf.KindUnmetThreshold, tuf.RoleTargets)
	s.TargetsSignedBy = 1
	return s
}

// InvalidRootRotation publishes 2.root.json without the signature of the
// version 1 root key.
func InvalidRootRotation() RepoSpec {
	s := RootRotation()
	s.Error = tuf.KindRootRotationFailure.String()
	s.RootCrossSignSkip = []int{2}
	return s
}

func dirVector(name, desc string, director RepoSpec) Vector {
	return Vector{
		Name:        name,
		Description: desc,
		Director:    ptr(director),
		Image:       ptr(ValidEd25519()),
		Expect:      director.Error,
	}
}

func imageVector(name, desc string, image RepoSpec) Vector {
	return Vector{
		Name:        name,
		Description: desc,
		Director:    ptr(ValidEd25519()),
		Image:       ptr(image),
		Expect:      image.Error,
	}
}

// Vectors returns the Uptane vectors 001 to 045 in order.
func Vectors() []Vector {
	vs := []Vector{
		{Name: "001", Description: "valid repositories with ed25519 keys", Director: ptr(ValidEd25519()), Image: ptr(ValidEd25519())},
		// the payload is only downloaded from the image repository
		{Name: "002", Description: "director stores altered target content", Director: ptr(TargetHashMismatch(ValidEd25519())), Image: ptr(ValidEd25519())},
		{Name: "003", Description: "image repository stores altered target content", Director: ptr(ValidEd25519()), Image: ptr(TargetHashMismatch(ValidEd25519())),
			Expect: tuf.KindTargetHashMismatch.String(), Stage: StageContent},
		{Name: "004", Description: "missing director", Image: ptr(ValidEd25519()),
			Expect: (&tuf.TrustError{Kind: tuf.KindMissingRepo, Repo: tuf.RepoDirector}).Code()},
		{Name: "005", Description: "missing image repository", Director: ptr(ValidEd25519()),
			Expect: (&tuf.TrustError{Kind: tuf.KindMissingRepo, Repo: tuf.RepoImage}).Code()},
		{Name: "006", Description: "both repositories store a target longer than declared", Director: ptr(OversizedTarget(ValidEd25519())), Image: ptr(OversizedTarget(ValidEd25519())),
			Expect: tuf.KindOversizedTarget.String(), Stage: StageContent},
		{Name: "007", Description: "director declares a shorter target than the image repository", Director: ptr(OversizedTarget(ValidEd25519())), Image: ptr(LongerTarget()),
			Expect: tuf.KindInconsistent.String()},
	}

	i := 8
	next := func() string {
		n := fmt.Sprintf("%03d", i)
		i++
		return n
	}
	roles := []tuf.Role{tuf.RoleRoot, tuf.RoleTargets, tuf.RoleTimestamp, tuf.RoleSnapshot}
	for _, role := range roles {
		vs = append(vs, dirVector(next(), "director "+role.Name()+" expired", Expired(role)))
	}
	for _, role := range roles {
		vs = append(vs, imageVector(next(), "image repository "+role.Name()+" expired", Expired(role)))
	}
	for _, role := range roles {
		vs = append(vs, dirVector(next(), "director "+role.Name()+" threshold zero", ThresholdZero(role)))
	}
	for _, role := range roles {
		vs = append(vs, imageVector(next(), "image repository "+role.Name()+" threshold zero", ThresholdZero(role)))
	}

	vs = append(vs,
		Vector{Name: next(), Description: "valid repositories with rsa keys", Director: ptr(ValidRSA()), Image: ptr(ValidRSA())},
		Vector{Name: next(), Description: "both repositories store altered content, rsa keys", Director: ptr(TargetHashMismatch(ValidRSA())), Image: ptr(TargetHashMismatch(ValidRSA())),
			Expect: tuf.KindTargetHashMismatch.String(), Stage: StageContent},
	)

	for _, role := range roles {
		vs = append(vs, dirVector(next(), "director "+role.Name()+" unmet threshold", UnmetThreshold(role)))
	}
	for _, role := range roles {
		vs = append(vs, imageVector(next(), "image repository "+role.Name()+" unmet threshold", UnmetThreshold(role)))
	}
	for _, role := range roles {
		vs = append(vs, dirVector(next(), "director "+role.Name()+" bad key ids", BadKeyIDs(role)))
	}
	for _, role := range roles {
		vs = append(vs, imageVector(next(), "image repository "+role.Name()+" bad key ids", BadKeyIDs(role)))
	}

	vs = append(vs,
		dirVector(next(), "director root rotation", RootRotation()),
		dirVector(next(), "director root rotation without cross signature", InvalidRootRotation()),
		imageVector(next(), "image repository root rotation", RootRotation()),
		imageVector(next(), "image repository root rotation without cross signature", InvalidRootRotation()),
	)
	return vs
}

// VectorByName returns the vector with the given name.
func VectorByName(name string) (Vector, bool) {
	for _, v := range Vectors() {
		if v.Name == name {
			return v, true
		}
	}
	return Vector{}, false
}

// Singles returns single repository specs keyed by a descriptive name.
// Each is verified, and its content checked, in isolation.
func Singles() map[string]RepoSpec {
	out := map[string]RepoSpec{
		"valid-ed25519":            ValidEd25519(),
		"valid-rsa":                ValidRSA(),
		"target-hash-mismatch":     TargetHashMismatch(ValidEd25519()),
		"rsa-target-hash-mismatch": TargetHashMismatch(ValidRSA()),
		"oversized-target":         OversizedTarget(ValidEd25519()),
		"root-rotation":            RootRotation(),
		"invalid-root-rotation":    InvalidRootRotation(),
		"stale-targets-keys":       StaleTargetsKeys(),
	}
	for _, role := range tuf.TopLevelRoles {
		out["expired-"+role.Name()] = Expired(role)
		out["unmet-threshold-"+role.Name()] = UnmetThreshold(role)
		out["bad-key-ids-"+role.Name()] = BadKeyIDs(role)
		out["threshold-zero-"+role.Name()] = ThresholdZero(role)
	}
	return out
}
