/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/domain"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxRedirects    = 10
	defaultUserAgent       = "uptane-trust/fetcher"
)

var (
	ErrNotConfigured    = errors.New("repository base URL is not configured")
	ErrTooManyRedirects = errors.New("too many redirects")
)

// HTTPFetcher fetches the documents of one repository over HTTP. Network
// errors, 5xx responses, interrupted bodies and malformed JSON are retried
// with exponential backoff; anything else fails at once.
type HTTPFetcher struct {
	baseURL         *url.URL
	httpClient      *http.Client
	timeout         time.Duration
	maxRetries      int
	initialInterval time.Duration
	logger          logrus.FieldLogger
}

var (
	_ tuf.Fetcher    = (*HTTPFetcher)(nil)
	_ tuf.URIFetcher = (*HTTPFetcher)(nil)
)

func NewHTTPFetcher(cfg config.RemoteConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse repository URL: %w", err)
	}

	timeout := cfg.Timeout.Std()
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.InitialInterval.Std()
	if interval == 0 {
		interval = defaultInitialInterval
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = defaultMaxRedirects
	}

	transport := &http.Transport{}
	if base.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureTLS}
	}

	httpClient := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
			}
			return nil
		},
	}

	var logger logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	return &HTTPFetcher{
		baseURL:         base,
		httpClient:      httpClient,
		timeout:         timeout,
		maxRetries:      cfg.MaxRetries,
		initialInterval: interval,
		logger:          logger.WithField("base_url", base.String()),
	}, nil
}

func (f *HTTPFetcher) FetchRole(ctx context.Context, role tuf.Role, version int, maxSize int64) ([]byte, error) {
	return f.get(ctx, f.baseURL.JoinPath(tuf.RoleFileName(role, version)), maxSize, true)
}

// FetchTarget returns at most maxSize bytes of a target's content. Longer
// content is truncated rather than rejected so that the caller can tell an
// oversized target from a transport failure.
func (f *HTTPFetcher) FetchTarget(ctx context.Context, path string, maxSize int64) (io.ReadCloser, error) {
	body, err := f.get(ctx, f.baseURL.JoinPath("targets", path), maxSize, false)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// FetchURI is FetchTarget for a target's custom uri, resolved against the
// base URL.
func (f *HTTPFetcher) FetchURI(ctx context.Context, uri string, maxSize int64) (io.ReadCloser, error) {
	u, err := f.baseURL.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse target uri %q: %w", uri, err)
	}
	body, err := f.get(ctx, u, maxSize, false)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *HTTPFetcher) backoff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     f.initialInterval,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         10 * f.initialInterval,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.maxRetries)), ctx)
}

// get fetches u. Metadata (strict) larger than maxSize is rejected, target
// content is truncated to maxSize.
func (f *HTTPFetcher) get(ctx context.Context, u *url.URL, maxSize int64, strict bool) ([]byte, error) {
	logger := f.logger.WithField("url", u.String())
	attempt := 0
	var body []byte
	err := backoff.RetryNotify(
		func() error {
			attempt++
			b, err := f.attempt(ctx, u, maxSize, strict)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		f.backoff(ctx),
		func(err error, d time.Duration) {
			logger.WithField("attempt", attempt).Debugf("fetch failed, retrying in %v: %v", d, err)
		},
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%s: %w", u, ctxErr)
		}
		return nil, err
	}
	return body, nil
}

// attempt performs one request. Errors that must not be retried are
// wrapped with backoff.Permanent, the others wrap domain.ErrTransient.
func (f *HTTPFetcher) attempt(ctx context.Context, u *url.URL, maxSize int64, strict bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, backoff.Permanent(err)
	}
	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) || ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", u, err))
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransient, u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", u, domain.ErrNotFound))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s: unexpected status %s", domain.ErrTransient, u, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("%s: unexpected status %s", u, resp.Status))
	}

	if strict && maxSize > 0 && resp.ContentLength > maxSize {
		return nil, backoff.Permanent(fmt.Errorf("%s: %d bytes: %w", u, resp.ContentLength, domain.ErrTooLarge))
	}

	var r io.Reader = resp.Body
	if maxSize > 0 {
		limit := maxSize
		if strict {
			limit++
		}
		r = io.LimitReader(r, limit)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", u, err))
		}
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrTransient, u, err)
	}
	if strict && maxSize > 0 && int64(len(body)) > maxSize {
		return nil, backoff.Permanent(fmt.Errorf("%s: more than %d bytes: %w", u, maxSize, domain.ErrTooLarge))
	}
	if strict && !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s: malformed JSON", domain.ErrTransient, u)
	}
	return body, nil
}
