/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/domain/service"
	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/util"
)

// ECU is the receiver of an update.
type ECU struct {
	Serial string
	// HardwareID, when set, must equal the one the Director declares.
	HardwareID string
	// Path, when set, restricts the Director targets considered.
	Path string
}

// AuthorizedTarget is a target both repositories agree on.
type AuthorizedTarget struct {
	ECU    ECU
	Path   string
	Length int64
	Hashes tuf.Hashes
	// URI is the Image repository's custom download location, if any.
	URI string

	Director *tuf.TargetFile
	Image    *tuf.TargetFile
}

// Verifier reconciles the Director and Image repositories. It keeps no
// state between sessions and is safe for concurrent use once configured.
type Verifier struct {
	encoding          tuf.Encoding
	signatureEncoding tuf.SignatureEncoding
	maxRootRotations  int
	limits            map[tuf.RepoKind]tuf.Limits
	trustedRoots      map[tuf.RepoKind][]byte

	clock   clockwork.Clock
	logger  logrus.FieldLogger
	metrics *Metrics
	reports service.VerificationReportRepository
}

// NewVerifier builds a verifier from cfg. reports may be nil, in which case
// outcomes are only logged and counted.
func NewVerifier(cfg config.VerifierConfig, reports service.VerificationReportRepository) (*Verifier, error) {
	enc, err := tuf.ParseEncoding(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: verifier.encoding: %v", config.ErrInvalidConfig, err)
	}
	sigEnc, err := tuf.ParseSignatureEncoding(cfg.SignatureEncoding)
	if err != nil {
		return nil, fmt.Errorf("%w: verifier.signature_encoding: %v", config.ErrInvalidConfig, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var logger logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	l := cfg.Limits
	return &Verifier{
		encoding:          enc,
		signatureEncoding: sigEnc,
		maxRootRotations:  cfg.MaxRootRotations,
		limits: map[tuf.RepoKind]tuf.Limits{
			tuf.RepoDirector: {Root: l.Root, Timestamp: l.Timestamp, Snapshot: l.Snapshot, Targets: l.DirectorTargets},
			tuf.RepoImage:    {Root: l.Root, Timestamp: l.Timestamp, Snapshot: l.Snapshot, Targets: l.ImageTargets},
		},
		trustedRoots: map[tuf.RepoKind][]byte{},
		clock:        clock,
		logger:       logger,
		metrics:      NewMetrics(cfg.Registerer),
		reports:      reports,
	}, nil
}

// SetTrustedRoot makes verification of repo start from raw instead of
// 1.root.json. It must not be called concurrently with verification.
func (v *Verifier) SetTrustedRoot(repo tuf.RepoKind, raw []byte) {
	v.trustedRoots[repo] = raw
}

// Metrics returns the verifier's collectors.
func (v *Verifier) Metrics() *Metrics {
	return v.metrics
}

func (v *Verifier) options(repo tuf.RepoKind, now time.Time, logger logrus.FieldLogger) tuf.Options {
	return tuf.Options{
		Repo:              repo,
		TrustedRoot:       v.trustedRoots[repo],
		Now:               now,
		Encoding:          v.encoding,
		SignatureEncoding: v.signatureEncoding,
		MaxRootRotations:  v.maxRootRotations,
		Limits:            v.limits[repo],
		Logger:            logger,
	}
}

// VerifyRepository verifies a single repository with the verifier's
// configuration.
func (v *Verifier) VerifyRepository(ctx context.Context, repo tuf.RepoKind, f tuf.Fetcher, now time.Time) (*tuf.VerifiedBundle, error) {
	if now.IsZero() {
		now = v.clock.Now()
	}
	return tuf.VerifyRepository(ctx, f, v.options(repo, now, v.logger))
}

// session is the outcome of one VerifyUpdate call.
type session struct {
	id       string
	ecu      ECU
	now      time.Time
	bundles  [2]*tuf.VerifiedBundle
	repoErrs [2]error
	target   *AuthorizedTarget
	err      error
}

var repos = [2]tuf.RepoKind{tuf.RepoDirector, tuf.RepoImage}

// VerifyUpdate verifies both repositories as of now (the verifier's clock
// when zero) and returns the target authorized for ecu. A nil fetcher is a
// missing repository. Identical inputs give identical results.
func (v *Verifier) VerifyUpdate(ctx context.Context, ecu ECU, director, image tuf.Fetcher, now time.Time) (*AuthorizedTarget, error) {
	_, at, err := v.VerifyUpdateSession(ctx, ecu, director, image, now)
	return at, err
}

// VerifyUpdateSession is VerifyUpdate that also returns the id under which
// the session was logged and reported.
func (v *Verifier) VerifyUpdateSession(ctx context.Context, ecu ECU, director, image tuf.Fetcher, now time.Time) (string, *AuthorizedTarget, error) {
	if now.IsZero() {
		now = v.clock.Now()
	}
	s := &session{id: uuid.NewString(), ecu: ecu, now: now}
	logger := v.logger.WithFields(logrus.Fields{"session": s.id, "ecu": ecu.Serial})

	start := v.clock.Now()
	fetchers := [2]tuf.Fetcher{director, image}
	var g errgroup.Group
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			s.bundles[i], s.repoErrs[i] = tuf.VerifyRepository(ctx, fetchers[i], v.options(repo, now, logger))
			return nil
		})
	}
	_ = g.Wait()

	s.err = primary(s.repoErrs[0], s.repoErrs[1])
	if s.err == nil {
		s.target, s.err = reconcile(s.bundles[0], s.bundles[1], ecu)
	}
	for i, repo := range repos {
		v.metrics.observeRepo(repo.String(), s.repoErrs[i])
	}
	v.metrics.observeSession(s.err, v.clock.Since(start))
	v.logSession(logger, s)
	v.record(ctx, logger, s)

	return s.id, s.target, s.err
}

func (v *Verifier) logSession(logger logrus.FieldLogger, s *session) {
	for i, repo := range repos {
		if err := s.repoErrs[i]; err != nil {
			logger.WithFields(logrus.Fields{"repo": repo.String(), "code": codeLabel(err)}).Debugf("repository rejected: %v", err)
		}
	}
	if s.err != nil {
		logger.WithField("code", codeLabel(s.err)).Warnf("update rejected: %v", s.err)
		return
	}
	logger.WithFields(logrus.Fields{
		"target": s.target.Path,
		"length": s.target.Length,
	}).Info("update authorized")
}

// reconcile selects the Director's target for ecu and checks it against
// the Image repository.
func reconcile(director, image *tuf.VerifiedBundle, ecu ECU) (*AuthorizedTarget, error) {
	dt, err := selectTarget(director, ecu)
	if err != nil {
		return nil, err
	}
	it, ok := image.Target(dt.Path)
	if !ok {
		return nil, &tuf.TrustError{Kind: tuf.KindInconsistent, Repo: tuf.RepoImage,
			Cause: fmt.Errorf("image repository does not declare %q", dt.Path)}
	}
	if !dt.MatchesMetadata(it) {
		return nil, &tuf.TrustError{Kind: tuf.KindInconsistent, Repo: tuf.RepoImage,
			Cause: fmt.Errorf("%q: director declares %d bytes, image repository %d bytes or different hashes", dt.Path, dt.Length, it.Length)}
	}

	uri := it.Custom.URI
	if uri == "" {
		uri = dt.Custom.URI
	}
	return &AuthorizedTarget{
		ECU:      ecu,
		Path:     dt.Path,
		Length:   dt.Length,
		Hashes:   dt.Hashes,
		URI:      uri,
		Director: dt,
		Image:    it,
	}, nil
}

// addressedECUs lists every serial a director target is addressed to.
func addressedECUs(director *tuf.VerifiedBundle) []string {
	serials := util.NewSet[string]()
	for _, t := range director.Targets.Targets {
		for _, s := range t.ECUs() {
			serials.Add(s)
		}
	}
	return util.SortedStrings(serials)
}

func selectTarget(director *tuf.VerifiedBundle, ecu ECU) (*tuf.TargetFile, error) {
	var candidates []*tuf.TargetFile
	for _, t := range director.TargetsForECU(ecu.Serial) {
		if ecu.Path == "" || t.Path == ecu.Path {
			candidates = append(candidates, t)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, &tuf.TrustError{Kind: tuf.KindTargetNotFound, Repo: tuf.RepoDirector,
			Cause: fmt.Errorf("no target for ECU %q, director addresses [%s]", ecu.Serial, strings.Join(addressedECUs(director), ", "))}
	case 1:
	default:
		paths := make([]string, len(candidates))
		for i, t := range candidates {
			paths[i] = t.Path
		}
		return nil, &tuf.TrustError{Kind: tuf.KindDuplicateEcuTarget, Repo: tuf.RepoDirector,
			Cause: fmt.Errorf("ECU %q has targets %s", ecu.Serial, strings.Join(paths, ", "))}
	}

	t := candidates[0]
	id, _ := t.ForECU(ecu.Serial)
	if ecu.HardwareID != "" && id.HardwareID != ecu.HardwareID {
		return nil, &tuf.TrustError{Kind: tuf.KindBadHardwareID, Repo: tuf.RepoDirector,
			Cause: fmt.Errorf("%q is for hardware %q, ECU %q is %q", t.Path, id.HardwareID, ecu.Serial, ecu.HardwareID)}
	}
	return t, nil
}
