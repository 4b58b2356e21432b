/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts verification outcomes.
type Metrics struct {
	Sessions     *prometheus.CounterVec
	RepoFailures *prometheus.CounterVec
	Payloads     *prometheus.CounterVec
	Duration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uptane",
			Name:      "verification_sessions_total",
			Help:      "Update verification sessions by outcome and error code.",
		}, []string{"outcome", "code"}),
		RepoFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uptane",
			Name:      "repository_failures_total",
			Help:      "Repository verification failures by repository and error code.",
		}, []string{"repo", "code"}),
		Payloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uptane",
			Name:      "payload_checks_total",
			Help:      "Target content checks by outcome and error code.",
		}, []string{"outcome", "code"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uptane",
			Name:      "verification_duration_seconds",
			Help:      "Time spent verifying both repositories.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	return "rejected"
}

func (m *Metrics) observeSession(err error, elapsed time.Duration) {
	m.Sessions.WithLabelValues(outcome(err), codeLabel(err)).Inc()
	m.Duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeRepo(repo string, err error) {
	if err != nil {
		m.RepoFailures.WithLabelValues(repo, codeLabel(err)).Inc()
	}
}

func (m *Metrics) observePayload(err error) {
	m.Payloads.WithLabelValues(outcome(err), codeLabel(err)).Inc()
}
