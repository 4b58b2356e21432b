/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package faultinject

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kentakayama/uptane-trust/internal/config"
)

var ErrUnknownPolicy = errors.New("unknown fault policy")

// Injector is middleware applying a Policy per request path. It owns the
// only mutable state: the number of requests seen per path.
type Injector struct {
	next   http.Handler
	logger logrus.FieldLogger

	mu       sync.Mutex
	policies map[string]Policy
	attempts map[string]int
}

func NewInjector(next http.Handler, logger logrus.FieldLogger) *Injector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Injector{
		next:     next,
		logger:   logger,
		policies: map[string]Policy{},
		attempts: map[string]int{},
	}
}

func key(path string) string {
	return strings.TrimPrefix(path, "/")
}

// Set attaches p to path, e.g. "director/timestamp.json", and restarts its
// attempt count.
func (i *Injector) Set(path string, p Policy) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.policies[key(path)] = p
	delete(i.attempts, key(path))
}

// Clear removes every policy and attempt count.
func (i *Injector) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.policies = map[string]Policy{}
	i.attempts = map[string]int{}
}

// Attempts returns the number of requests seen for path.
func (i *Injector) Attempts(path string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.attempts[key(path)]
}

func (i *Injector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	k := key(r.URL.Path)

	i.mu.Lock()
	p, ok := i.policies[k]
	if ok {
		i.attempts[k]++
	}
	attempt := i.attempts[k]
	i.mu.Unlock()

	if !ok {
		i.next.ServeHTTP(w, r)
		return
	}
	i.logger.WithFields(logrus.Fields{"path": k, "policy": p.String(), "attempt": attempt}).Debug("fault policy applied")
	p.Serve(attempt, w, r, i.next)
}

// FromConfig builds the policy of one configured fault.
func FromConfig(f config.FaultConfig) (Policy, error) {
	switch strings.ToLower(f.Kind) {
	case "download_interruption":
		return DownloadInterruption{Failures: f.Failures}, nil
	case "malformed_json":
		return MalformedJSON{Failures: f.Failures}, nil
	case "malformed_image":
		return MalformedImage{Failures: f.Failures}, nil
	case "redirect":
		return Redirect{Hops: f.Hops}, nil
	case "slow_retrieval":
		return SlowRetrieval{Delay: f.Delay.Std()}, nil
	case "alternate_unavailable":
		return AlternateUnavailable{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, f.Kind)
}

// Configure replaces the policies with the configured faults.
func (i *Injector) Configure(faults []config.FaultConfig) error {
	policies := make(map[string]Policy, len(faults))
	for _, f := range faults {
		p, err := FromConfig(f)
		if err != nil {
			return fmt.Errorf("fault on %s: %w", f.Path, err)
		}
		policies[key(f.Path)] = p
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.policies = policies
	i.attempts = map[string]int{}
	return nil
}
