/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/tuf/tuftest"
	"github.com/kentakayama/uptane-trust/internal/uptane"
)

func TestVerifyUpdate_Vectors(t *testing.T) {
	for _, vec := range tuftest.Vectors() {
		t.Run(vec.Name, func(t *testing.T) {
			v, _ := newVerifier(t, nil)
			ctx := context.Background()
			_, director, image := buildVector(t, vec)

			at, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
			if !vec.Success() && vec.Stage == tuftest.StageMetadata {
				require.Error(t, err)
				assert.Nil(t, at)
				assert.Equal(t, vec.Expect, tuf.CodeOf(err), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tuftest.DefaultTargetPath, at.Path)

			content, err := v.Fetch(ctx, at, image)
			if vec.Success() {
				require.NoError(t, err)
				assert.Len(t, content, int(at.Length))
				assert.NoError(t, at.Hashes.Verify(content))
				return
			}
			require.Error(t, err)
			assert.Nil(t, content)
			assert.Equal(t, vec.Expect, tuf.CodeOf(err), err.Error())
		})
	}
}

func TestVerifyUpdate_Idempotent(t *testing.T) {
	for _, name := range []string{"001", "007", "027"} {
		vec, ok := tuftest.VectorByName(name)
		require.True(t, ok)

		v, _ := newVerifier(t, nil)
		_, director, image := buildVector(t, vec)

		first, firstErr := v.VerifyUpdate(context.Background(), defaultECU, director, image, tuftest.Now)
		second, secondErr := v.VerifyUpdate(context.Background(), defaultECU, director, image, tuftest.Now)

		assert.Equal(t, tuf.CodeOf(firstErr), tuf.CodeOf(secondErr), name)
		assert.Equal(t, first, second, name)
		if firstErr != nil {
			assert.Equal(t, firstErr.Error(), secondErr.Error(), name)
		}
	}
}

func TestVerifyUpdate_Precedence(t *testing.T) {
	ctx := context.Background()

	t.Run("missing repository over everything", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		image := build(t, tuf.RepoImage, tuftest.Expired(tuf.RoleRoot))
		_, err := v.VerifyUpdate(ctx, defaultECU, nil, image, tuftest.Now)
		assert.Equal(t, "MissingRepo::Director", tuf.CodeOf(err))
	})

	t.Run("root chain over other metadata", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.UnmetThreshold(tuf.RoleTargets))
		image := build(t, tuf.RepoImage, tuftest.InvalidRootRotation())
		_, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		assert.Equal(t, "RootRotationFailure", tuf.CodeOf(err))
		te, ok := tuf.AsTrustError(err)
		require.True(t, ok)
		assert.Equal(t, tuf.RepoImage, te.Repo)
	})

	t.Run("director wins ties", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.Expired(tuf.RoleSnapshot))
		image := build(t, tuf.RepoImage, tuftest.UnmetThreshold(tuf.RoleTargets))
		_, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		assert.Equal(t, "ExpiredMetadata::Snapshot", tuf.CodeOf(err))
	})

	t.Run("verification failures over transient ones", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
		director.FailNext("timestamp.json", 1)
		image := build(t, tuf.RepoImage, tuftest.UnmetThreshold(tuf.RoleTimestamp))
		_, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		assert.Equal(t, "UnmetThreshold::Timestamp", tuf.CodeOf(err))
	})

	t.Run("transient failure is retryable", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
		image := build(t, tuf.RepoImage, tuftest.ValidEd25519())
		image.FailNext("snapshot.json", 1)
		_, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		te, ok := tuf.AsTrustError(err)
		require.True(t, ok, "%v", err)
		assert.Equal(t, "MetadataFetchFailure::Snapshot", te.Code())
		assert.True(t, te.Retryable())

		// the next attempt succeeds
		_, err = v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		assert.NoError(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
		image := build(t, tuf.RepoImage, tuftest.ValidEd25519())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := v.VerifyUpdate(cctx, defaultECU, director, image, tuftest.Now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "%v", err)
	})
}

func TestVerifyUpdate_TargetSelection(t *testing.T) {
	ctx := context.Background()
	two := []tuftest.Target{
		{Path: "a.bin", Content: []byte("aaaa")},
		{Path: "b.bin", Content: []byte("bbbbbb")},
	}

	t.Run("unknown ecu", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
		image := build(t, tuf.RepoImage, tuftest.ValidEd25519())
		_, err := v.VerifyUpdate(ctx, uptane.ECU{Serial: "00:00"}, director, image, tuftest.Now)
		assert.ErrorIs(t, err, tuf.ErrTargetNotFound)
		assert.Equal(t, "TargetNotFound", tuf.CodeOf(err))
		assert.Contains(t, err.Error(), "director addresses ["+tuftest.DefaultECUSerial+"]")
	})

	t.Run("hardware id mismatch", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
		image := build(t, tuf.RepoImage, tuftest.ValidEd25519())
		ecu := uptane.ECU{Serial: tuftest.DefaultECUSerial, HardwareID: "secondary-hw"}
		_, err := v.VerifyUpdate(ctx, ecu, director, image, tuftest.Now)
		assert.Equal(t, "BadHardwareId", tuf.CodeOf(err))

		// an ECU without a hardware id accepts any
		ecu.HardwareID = ""
		_, err = v.VerifyUpdate(ctx, ecu, director, image, tuftest.Now)
		assert.NoError(t, err)
	})

	t.Run("several targets", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.RepoSpec{Targets: two})
		image := build(t, tuf.RepoImage, tuftest.RepoSpec{Targets: two})
		_, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		assert.ErrorIs(t, err, tuf.ErrDuplicateEcuTarget)

		ecu := defaultECU
		ecu.Path = "b.bin"
		at, err := v.VerifyUpdate(ctx, ecu, director, image, tuftest.Now)
		require.NoError(t, err)
		assert.Equal(t, "b.bin", at.Path)
		assert.Equal(t, int64(6), at.Length)
	})

	t.Run("image does not declare the target", func(t *testing.T) {
		v, _ := newVerifier(t, nil)
		director := build(t, tuf.RepoDirector, tuftest.RepoSpec{Targets: two[:1]})
		image := build(t, tuf.RepoImage, tuftest.RepoSpec{Targets: two[1:]})
		_, err := v.VerifyUpdate(ctx, defaultECU, director, image, tuftest.Now)
		assert.ErrorIs(t, err, tuf.ErrInconsistent)
	})
}

func TestVerifyUpdate_ZeroNowUsesClock(t *testing.T) {
	v, _ := newVerifier(t, nil)
	director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
	image := build(t, tuf.RepoImage, tuftest.Expired(tuf.RoleTargets))

	// the fake clock stands at tuftest.Now
	_, err := v.VerifyUpdate(context.Background(), defaultECU, director, image, time.Time{})
	assert.Equal(t, "ExpiredMetadata::Targets", tuf.CodeOf(err))

	_, err = v.VerifyUpdate(context.Background(), defaultECU, director, image, tuftest.ExpiredSince.Add(-time.Second))
	assert.NoError(t, err)
}

func TestVerifyUpdate_TrustedRoot(t *testing.T) {
	v, _ := newVerifier(t, nil)
	r, err := tuftest.Build(tuf.RepoImage, tuftest.RootRotation())
	require.NoError(t, err)
	image := tuftest.NewMemoryFetcher(r)
	director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())

	v.SetTrustedRoot(tuf.RepoImage, r.File("1.root.json"))
	_, err = v.VerifyUpdate(context.Background(), defaultECU, director, image, tuftest.Now)
	require.NoError(t, err)
	assert.NotContains(t, image.Calls(), "1.root.json")
}

func TestVerifyUpdate_Logs(t *testing.T) {
	v, hook := newVerifier(t, nil)
	director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
	_, err := v.VerifyUpdate(context.Background(), defaultECU, director, nil, tuftest.Now)
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "MissingRepo::Repo", entry.Data["code"])
	assert.Equal(t, tuftest.DefaultECUSerial, entry.Data["ecu"])
	assert.NotEmpty(t, entry.Data["session"])
}

func TestVerifyUpdate_Metrics(t *testing.T) {
	v, _ := newVerifier(t, nil)
	director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
	image := build(t, tuf.RepoImage, tuftest.ValidEd25519())

	_, err := v.VerifyUpdate(context.Background(), defaultECU, director, image, tuftest.Now)
	require.NoError(t, err)
	_, err = v.VerifyUpdate(context.Background(), defaultECU, nil, image, tuftest.Now)
	require.Error(t, err)

	m := v.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("accepted", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("rejected", "MissingRepo::Director")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepoFailures.WithLabelValues("director", "MissingRepo::Director")))
}

func TestVerifyUpdate_Reports(t *testing.T) {
	reports := &memoryReports{}
	v, _ := newVerifier(t, reports)
	director := build(t, tuf.RepoDirector, tuftest.UnmetThreshold(tuf.RoleTargets))
	image := build(t, tuf.RepoImage, tuftest.Expired(tuf.RoleTimestamp))

	_, err := v.VerifyUpdate(context.Background(), defaultECU, director, image, tuftest.Now)
	require.Error(t, err)
	require.Len(t, reports.reports, 1)

	r := reports.reports[0]
	assert.False(t, r.Accepted)
	assert.Equal(t, "UnmetThreshold::Targets", r.Code)
	assert.Equal(t, tuftest.DefaultECUSerial, r.EcuSerial)
	assert.Empty(t, r.TargetPath)

	detail, err := uptane.DecodeReportDetail(r.Detail)
	require.NoError(t, err)
	assert.Equal(t, tuftest.Now.Unix(), detail.Now)
	require.Len(t, detail.Repos, 2)
	assert.Equal(t, uptane.RepoDetail{Repo: "director", Code: "UnmetThreshold::Targets"}, detail.Repos[0])
	assert.Equal(t, uptane.RepoDetail{Repo: "image", Code: "ExpiredMetadata::Timestamp"}, detail.Repos[1])
	assert.Len(t, detail.Errors, 2)
}

func TestVerifyUpdate_ReportAccepted(t *testing.T) {
	reports := &memoryReports{}
	v, _ := newVerifier(t, reports)
	director := build(t, tuf.RepoDirector, tuftest.ValidEd25519())
	image := build(t, tuf.RepoImage, tuftest.RootRotation())

	session, at, err := v.VerifyUpdateSession(context.Background(), defaultECU, director, image, tuftest.Now)
	require.NoError(t, err)
	require.NotNil(t, at)

	r, err := reports.FindBySession(context.Background(), session)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Accepted)
	assert.Equal(t, tuftest.DefaultTargetPath, r.TargetPath)

	detail, err := uptane.DecodeReportDetail(r.Detail)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Repos[0].RootVersion)
	assert.Equal(t, 2, detail.Repos[1].RootVersion)
	assert.Empty(t, detail.Errors)
}

func TestNewVerifier_InvalidConfig(t *testing.T) {
	_, err := uptane.NewVerifier(config.VerifierConfig{Encoding: "yaml"}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	_, err = uptane.NewVerifier(config.VerifierConfig{SignatureEncoding: "base32"}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
