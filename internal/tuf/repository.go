/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// VerifiedBundle is the outcome of a successful repository verification.
type VerifiedBundle struct {
	Repo      RepoKind
	Trust     *TrustState
	Timestamp *Timestamp
	Snapshot  *Snapshot
	Targets   *Targets
}

// Root returns the terminal root.
func (b *VerifiedBundle) Root() *Root {
	return b.Trust.Current()
}

// Target resolves a target path.
func (b *VerifiedBundle) Target(path string) (*TargetFile, bool) {
	t, ok := b.Targets.Targets[path]
	return t, ok
}

// TargetsForECU returns the targets addressed to serial, sorted by path.
func (b *VerifiedBundle) TargetsForECU(serial string) []*TargetFile {
	var out []*TargetFile
	for _, p := range b.Targets.Paths() {
		t := b.Targets.Targets[p]
		if _, ok := t.ForECU(serial); ok {
			out = append(out, t)
		}
	}
	return out
}

// latestRoles are fetched while the root chain is being verified.
var latestRoles = [...]Role{RoleTimestamp, RoleSnapshot, RoleTargets}

type prefetch struct {
	g    errgroup.Group
	raw  [len(latestRoles)][]byte
	errs [len(latestRoles)]error
}

func startPrefetch(ctx context.Context, f Fetcher, limits Limits) *prefetch {
	p := &prefetch{}
	for i, role := range latestRoles {
		i, role := i, role
		p.g.Go(func() error {
			p.raw[i], p.errs[i] = f.FetchRole(ctx, role, 0, limits.For(role))
			return nil
		})
	}
	return p
}

// wait returns the fetched documents, or the failure of the first role in
// verification order.
func (p *prefetch) wait() (map[Role][]byte, error) {
	_ = p.g.Wait()
	out := make(map[Role][]byte, len(latestRoles))
	for i, role := range latestRoles {
		if p.errs[i] != nil {
			return nil, fetchError(role, p.errs[i])
		}
		out[role] = p.raw[i]
	}
	return out, nil
}

// VerifyRepository verifies one repository: the root chain, then timestamp,
// snapshot and targets under the terminal root. Timestamp, snapshot and
// targets are fetched while the root chain is verified; they are only
// checked once the chain and all three documents are available.
func VerifyRepository(ctx context.Context, f Fetcher, opts Options) (*VerifiedBundle, error) {
	if f == nil {
		return nil, withRepo(newError(KindMissingRepo, RoleRoot, nil), opts.Repo)
	}
	b, err := verifyRepository(ctx, f, opts)
	if err != nil {
		return nil, withRepo(err, opts.Repo)
	}
	return b, nil
}

func verifyRepository(ctx context.Context, f Fetcher, opts Options) (*VerifiedBundle, error) {
	limits := opts.Limits.withDefaults(opts.Repo)
	logger := opts.logger()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pre := startPrefetch(fetchCtx, f, limits)

	trust, err := verifyRootChain(ctx, f, opts, limits)
	if err != nil {
		// documents signed by keys beyond the failed step are never looked at
		cancel()
		_ = pre.g.Wait()
		return nil, err
	}

	raw, err := pre.wait()
	if err != nil {
		return nil, err
	}

	root := trust.Current()
	now := opts.now()
	parse := opts.parse()

	timestamp, err := ParseTimestamp(raw[RoleTimestamp], parse)
	if err != nil {
		return nil, err
	}
	if err := checkRole(timestamp.signed, timestamp.Header, root, opts.Encoding, now); err != nil {
		return nil, err
	}
	snapshotMeta, ok := timestamp.SnapshotMeta()
	if !ok {
		return nil, newError(KindInvalidMetadata, RoleTimestamp, fmt.Errorf("no %s entry", RoleSnapshot.File()))
	}

	snapshot, err := ParseSnapshot(raw[RoleSnapshot], parse)
	if err != nil {
		return nil, err
	}
	if err := checkRole(snapshot.signed, snapshot.Header, root, opts.Encoding, now); err != nil {
		return nil, err
	}
	if err := snapshotMeta.Check(raw[RoleSnapshot]); err != nil {
		return nil, newError(KindLengthOrHashMismatch, RoleSnapshot, err)
	}
	if snapshot.Version != snapshotMeta.Version {
		return nil, newError(KindVersionMismatch, RoleSnapshot, fmt.Errorf("version %d, timestamp pins %d", snapshot.Version, snapshotMeta.Version))
	}
	if err := checkPinnedRoots(snapshot, trust); err != nil {
		return nil, err
	}
	targetsMeta, ok := snapshot.TargetsMeta()
	if !ok {
		return nil, newError(KindInvalidMetadata, RoleSnapshot, fmt.Errorf("no %s entry", RoleTargets.File()))
	}

	targets, err := ParseTargets(raw[RoleTargets], parse)
	if err != nil {
		return nil, err
	}
	if err := checkRole(targets.signed, targets.Header, root, opts.Encoding, now); err != nil {
		return nil, err
	}
	if targets.Version != targetsMeta.Version {
		return nil, newError(KindVersionMismatch, RoleTargets, fmt.Errorf("version %d, snapshot pins %d", targets.Version, targetsMeta.Version))
	}
	if err := targetsMeta.Check(raw[RoleTargets]); err != nil {
		return nil, newError(KindLengthOrHashMismatch, RoleTargets, err)
	}

	logger.WithFields(logrus.Fields{
		"root":      root.Version,
		"timestamp": timestamp.Version,
		"snapshot":  snapshot.Version,
		"targets":   targets.Version,
	}).Debug("repository verified")

	return &VerifiedBundle{
		Repo:      opts.Repo,
		Trust:     trust,
		Timestamp: timestamp,
		Snapshot:  snapshot,
		Targets:   targets,
	}, nil
}

// checkRole applies the threshold check, then the expiry check.
func checkRole(s *Signed, hdr Header, root *Root, enc Encoding, now time.Time) error {
	if _, err := VerifyThreshold(s, s.Role, root, enc); err != nil {
		return err
	}
	if hdr.Expired(now) {
		return newError(KindExpiredMetadata, s.Role, fmt.Errorf("version %d expired at %s", hdr.Version, hdr.Expires))
	}
	return nil
}

// checkPinnedRoots compares the snapshot's root entries with the root files
// actually fetched. Entries for versions that were not fetched are skipped.
func checkPinnedRoots(snapshot *Snapshot, trust *TrustState) error {
	byVersion := make(map[int]*Root, len(trust.Roots))
	for _, r := range trust.Roots {
		byVersion[r.Version] = r
	}
	for name, meta := range snapshot.Meta {
		var root *Root
		switch {
		case name == RoleRoot.File():
			if meta.Version == trust.Version() {
				root = trust.Current()
			}
		case strings.HasSuffix(name, "."+RoleRoot.File()):
			root = byVersion[meta.Version]
			if root != nil && name != RoleFileName(RoleRoot, meta.Version) {
				root = nil
			}
		}
		if root == nil {
			continue
		}
		if err := meta.Check(root.Signed().Raw); err != nil {
			return newError(KindLengthOrHashMismatch, RoleRoot, fmt.Errorf("%s: %w", name, err))
		}
	}
	return nil
}
