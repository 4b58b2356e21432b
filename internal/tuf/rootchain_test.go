/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/uptane-trust/internal/domain"
	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/tuf/tuftest"
)

func TestVerifyRootChain_SingleRoot(t *testing.T) {
	r := build(t, tuf.RepoImage, tuftest.ValidEd25519())
	f := tuftest.NewMemoryFetcher(r)

	state, err := tuf.VerifyRootChain(context.Background(), f, options(tuf.RepoImage))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Version())
	assert.Equal(t, []string{"1.root.json", "2.root.json"}, f.Calls())
}

func TestVerifyRootChain_Rotation(t *testing.T) {
	r := build(t, tuf.RepoDirector, tuftest.RootRotation())
	f := tuftest.NewMemoryFetcher(r)

	state, err := tuf.VerifyRootChain(context.Background(), f, options(tuf.RepoDirector))
	require.NoError(t, err)
	assert.Equal(t, 2, state.Version())
	require.Len(t, state.Roots, 2)

	// version 1 keys no longer sign for the repository
	v1, v2 := state.Roots[0], state.Current()
	for _, role := range tuf.TopLevelRoles {
		assert.NotEqual(t, v1.Roles[role].KeyIDs, v2.Roles[role].KeyIDs, role.String())
	}
}

func TestVerifyRootChain_MissingCrossSignatureHalts(t *testing.T) {
	r := build(t, tuf.RepoDirector, tuftest.InvalidRootRotation())
	f := tuftest.NewMemoryFetcher(r)

	hookLogger, hook := test.NewNullLogger()
	opts := options(tuf.RepoDirector)
	opts.Logger = hookLogger

	state, err := tuf.VerifyRootChain(context.Background(), f, opts)
	assert.Nil(t, state)
	assert.Equal(t, "RootRotationFailure", tuf.CodeOf(err))
	assert.ErrorIs(t, err, tuf.ErrUnmetThreshold)
	assert.ErrorIs(t, err, &tuf.TrustError{Kind: tuf.KindRootRotationFailure, Repo: tuf.RepoDirector})
	// nothing past the rejected root is fetched
	assert.Equal(t, []string{"1.root.json", "2.root.json"}, f.Calls())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "root rotation rejected: "+err.Error(), hook.LastEntry().Message)
}

func TestVerifyRootChain_VersionMismatch(t *testing.T) {
	r := build(t, tuf.RepoImage, tuftest.RootRotation())
	f := tuftest.NewMemoryFetcher(r)
	// 2.root.json is served under the name of version 3 as well
	f.Put("3.root.json", r.File("2.root.json"))

	_, err := tuf.VerifyRootChain(context.Background(), f, options(tuf.RepoImage))
	assert.Equal(t, "VersionMismatch::Root", tuf.CodeOf(err))
}

func TestVerifyRootChain_TrustedRoot(t *testing.T) {
	r := build(t, tuf.RepoImage, tuftest.RootRotation())
	f := tuftest.NewMemoryFetcher(r)
	f.Remove("1.root.json")

	opts := options(tuf.RepoImage)
	opts.TrustedRoot = r.File("1.root.json")
	state, err := tuf.VerifyRootChain(context.Background(), f, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Version())
	assert.Equal(t, []string{"2.root.json", "3.root.json"}, f.Calls())
}

func TestVerifyRootChain_UnmetInitialThreshold(t *testing.T) {
	r := build(t, tuf.RepoImage, tuftest.UnmetThreshold(tuf.RoleRoot))
	_, err := tuf.VerifyRootChain(context.Background(), tuftest.NewMemoryFetcher(r), options(tuf.RepoImage))
	assert.Equal(t, "UnmetThreshold::Root", tuf.CodeOf(err))
}

func TestVerifyRootChain_TerminalRootExpiry(t *testing.T) {
	spec := tuftest.RootRotation()
	spec.Expired = tuf.RoleRoot
	r := build(t, tuf.RepoImage, spec)

	_, err := tuf.VerifyRootChain(context.Background(), tuftest.NewMemoryFetcher(r), options(tuf.RepoImage))
	assert.Equal(t, "ExpiredMetadata::Root", tuf.CodeOf(err))

	// expiring exactly now is still valid
	opts := options(tuf.RepoImage)
	opts.Now = tuftest.ExpiredSince
	state, err := tuf.VerifyRootChain(context.Background(), tuftest.NewMemoryFetcher(r), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Version())
}

func TestVerifyRootChain_MissingRepo(t *testing.T) {
	_, err := tuf.VerifyRootChain(context.Background(), nil, options(tuf.RepoDirector))
	assert.Equal(t, "MissingRepo::Director", tuf.CodeOf(err))

	r := build(t, tuf.RepoImage, tuftest.ValidEd25519())
	f := tuftest.NewMemoryFetcher(r)
	f.Remove("1.root.json")
	_, err = tuf.VerifyRootChain(context.Background(), f, options(tuf.RepoImage))
	assert.Equal(t, "MissingRepo::Repo", tuf.CodeOf(err))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyRootChain_TransientFailure(t *testing.T) {
	r := build(t, tuf.RepoImage, tuftest.ValidEd25519())
	f := tuftest.NewMemoryFetcher(r)
	f.FailNext("2.root.json", 1)

	_, err := tuf.VerifyRootChain(context.Background(), f, options(tuf.RepoImage))
	assert.Equal(t, "MetadataFetchFailure::Root", tuf.CodeOf(err))
	te, ok := tuf.AsTrustError(err)
	require.True(t, ok)
	assert.True(t, te.Retryable())

	// the same request succeeds once the transport recovers
	state, err := tuf.VerifyRootChain(context.Background(), f, options(tuf.RepoImage))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Version())
}

func TestVerifyRootChain_MaxRotations(t *testing.T) {
	r := build(t, tuf.RepoImage, tuftest.RootRotation())
	f := tuftest.NewMemoryFetcher(r)

	opts := options(tuf.RepoImage)
	opts.MaxRootRotations = 1
	state, err := tuf.VerifyRootChain(context.Background(), f, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Version())
	assert.Equal(t, []string{"1.root.json", "2.root.json"}, f.Calls())
}
