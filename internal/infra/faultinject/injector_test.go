/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package faultinject

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/domain"
	"github.com/kentakayama/uptane-trust/internal/infra/remote"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

const document = `{"signed":{"_type":"Timestamp","version":1},"signatures":[]}`

func newServer(t *testing.T) (*Injector, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repo/timestamp.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, document)
	})
	mux.HandleFunc("/repo/targets/file.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "wat wat wat\n")
	})
	logger, _ := test.NewNullLogger()
	inj := NewInjector(mux, logger)
	srv := httptest.NewServer(inj)
	t.Cleanup(srv.Close)
	return inj, srv
}

func fetcher(t *testing.T, srv *httptest.Server, retries int, timeout time.Duration) *remote.HTTPFetcher {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f, err := remote.NewHTTPFetcher(config.RemoteConfig{
		BaseURL:         srv.URL + "/repo",
		Timeout:         config.Duration(timeout),
		MaxRetries:      retries,
		InitialInterval: config.Duration(time.Millisecond),
		MaxRedirects:    10,
		Logger:          logger,
	})
	require.NoError(t, err)
	return f
}

func TestInjector_RecoverableFaults(t *testing.T) {
	for _, p := range []Policy{
		DownloadInterruption{Failures: 3},
		MalformedJSON{Failures: 3},
	} {
		t.Run(p.String(), func(t *testing.T) {
			inj, srv := newServer(t)
			inj.Set("/repo/timestamp.json", p)

			body, err := fetcher(t, srv, 3, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
			require.NoError(t, err)
			assert.JSONEq(t, document, string(body))
			assert.Equal(t, 4, inj.Attempts("repo/timestamp.json"))

			// one retry fewer is not enough
			inj.Set("repo/timestamp.json", p)
			_, err = fetcher(t, srv, 2, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
			assert.ErrorIs(t, err, domain.ErrTransient)
		})
	}
}

func TestRedirect(t *testing.T) {
	inj, srv := newServer(t)
	inj.Set("repo/timestamp.json", Redirect{Hops: 10})
	body, err := fetcher(t, srv, 0, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
	require.NoError(t, err)
	assert.JSONEq(t, document, string(body))
	assert.Equal(t, 11, inj.Attempts("repo/timestamp.json"))

	inj.Set("repo/timestamp.json", Redirect{Hops: 11})
	_, err = fetcher(t, srv, 3, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
	assert.ErrorIs(t, err, remote.ErrTooManyRedirects)
	// not retried
	assert.Equal(t, 11, inj.Attempts("repo/timestamp.json"))
}

func TestSlowRetrieval(t *testing.T) {
	inj, srv := newServer(t)
	inj.Set("repo/timestamp.json", SlowRetrieval{Delay: 500 * time.Millisecond})

	_, err := fetcher(t, srv, 1, 50*time.Millisecond).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 2, inj.Attempts("repo/timestamp.json"))

	inj.Set("repo/timestamp.json", SlowRetrieval{Delay: 10 * time.Millisecond})
	_, err = fetcher(t, srv, 0, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
	assert.NoError(t, err)
}

func TestAlternateUnavailable(t *testing.T) {
	inj, srv := newServer(t)
	inj.Set("repo/timestamp.json", AlternateUnavailable{})

	_, err := fetcher(t, srv, 2, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, inj.Attempts("repo/timestamp.json"))
}

func TestMalformedImage(t *testing.T) {
	inj, srv := newServer(t)
	inj.Set("repo/targets/file.txt", MalformedImage{Failures: 1})
	f := fetcher(t, srv, 0, time.Second)

	read := func() []byte {
		rc, err := f.FetchTarget(context.Background(), "file.txt", 64)
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return b
	}
	first := read()
	assert.Len(t, first, 12)
	assert.NotEqual(t, "wat wat wat\n", string(first))
	assert.Equal(t, "wat wat wat\n", string(read()))
}

func TestInjector_UntouchedPaths(t *testing.T) {
	inj, srv := newServer(t)
	inj.Set("repo/targets/file.txt", AlternateUnavailable{})

	_, err := fetcher(t, srv, 0, time.Second).FetchRole(context.Background(), tuf.RoleTimestamp, 0, 1024)
	require.NoError(t, err)
	assert.Equal(t, 0, inj.Attempts("repo/timestamp.json"))

	inj.Clear()
	rc, err := fetcher(t, srv, 0, time.Second).FetchTarget(context.Background(), "file.txt", 64)
	require.NoError(t, err)
	rc.Close()
}

func TestConfigure(t *testing.T) {
	inj, _ := newServer(t)
	err := inj.Configure([]config.FaultConfig{
		{Path: "director/timestamp.json", Kind: "download_interruption", Failures: 2},
		{Path: "/repo/targets/file.txt", Kind: "Slow_Retrieval", Delay: config.Duration(time.Second)},
		{Path: "repo/root.json", Kind: "redirect", Hops: 4},
		{Path: "repo/snapshot.json", Kind: "alternate_unavailable"},
		{Path: "repo/targets.json", Kind: "malformed_json", Failures: 1},
		{Path: "repo/targets/x.img", Kind: "malformed_image", Failures: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, DownloadInterruption{Failures: 2}, inj.policies["director/timestamp.json"])
	assert.Equal(t, SlowRetrieval{Delay: time.Second}, inj.policies["repo/targets/file.txt"])
	assert.Equal(t, Redirect{Hops: 4}, inj.policies["repo/root.json"])
	assert.Len(t, inj.policies, 6)

	err = inj.Configure([]config.FaultConfig{{Path: "x", Kind: "bit_rot"}})
	assert.ErrorIs(t, err, ErrUnknownPolicy)
	// a failed configuration keeps the previous policies
	assert.Len(t, inj.policies, 6)
}
