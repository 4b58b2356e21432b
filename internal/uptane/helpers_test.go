/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/domain/model"
	"github.com/kentakayama/uptane-trust/internal/domain/service"
	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/tuf/tuftest"
	"github.com/kentakayama/uptane-trust/internal/uptane"
)

var defaultECU = uptane.ECU{Serial: tuftest.DefaultECUSerial, HardwareID: tuftest.DefaultHardwareID}

func newVerifier(t *testing.T, reports service.VerificationReportRepository) (*uptane.Verifier, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	v, err := uptane.NewVerifier(config.VerifierConfig{
		Encoding:          "json",
		SignatureEncoding: "hex",
		Logger:            logger,
		Clock:             clockwork.NewFakeClockAt(tuftest.Now),
		Registerer:        prometheus.NewRegistry(),
	}, reports)
	require.NoError(t, err)
	return v, hook
}

func buildVector(t *testing.T, v tuftest.Vector) (*tuftest.Built, tuf.Fetcher, tuf.Fetcher) {
	t.Helper()
	built, err := v.Build()
	require.NoError(t, err)
	director, image := built.Fetchers()
	return built, director, image
}

func build(t *testing.T, kind tuf.RepoKind, spec tuftest.RepoSpec) *tuftest.MemoryFetcher {
	t.Helper()
	if kind == tuf.RepoDirector && len(spec.ECUs) == 0 {
		spec.ECUs = []tuftest.ECU{{Serial: tuftest.DefaultECUSerial, HardwareID: tuftest.DefaultHardwareID}}
	}
	r, err := tuftest.Build(kind, spec)
	require.NoError(t, err)
	return tuftest.NewMemoryFetcher(r)
}

type memoryReports struct {
	mu      sync.Mutex
	reports []*model.VerificationReport
}

func (m *memoryReports) Create(_ context.Context, r *model.VerificationReport) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return int64(len(m.reports)), nil
}

func (m *memoryReports) FindBySession(_ context.Context, session string) (*model.VerificationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.Session == session {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memoryReports) ListByEcu(_ context.Context, serial string, _ int) ([]*model.VerificationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.VerificationReport
	for _, r := range m.reports {
		if r.EcuSerial == serial {
			out = append(out, r)
		}
	}
	return out, nil
}
