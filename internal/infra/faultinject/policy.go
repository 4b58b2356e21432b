/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package faultinject makes a repository server misbehave on purpose.
//
// A Policy is immutable: what it does to a request depends only on the
// request and on the attempt number the Injector passes in.
package faultinject

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Policy serves one request, possibly delegating to next. attempt counts
// the requests for the same path, starting at 1.
type Policy interface {
	Serve(attempt int, w http.ResponseWriter, r *http.Request, next http.Handler)
	String() string
}

// DownloadInterruption announces the full length but sends only half of
// the body for the first Failures attempts.
type DownloadInterruption struct {
	Failures int
}

func (p DownloadInterruption) Serve(attempt int, w http.ResponseWriter, r *http.Request, next http.Handler) {
	if attempt > p.Failures {
		next.ServeHTTP(w, r)
		return
	}
	c := record(next, r)
	if c.status != http.StatusOK {
		c.replay(w)
		return
	}
	body := c.body.Bytes()
	copyHeader(w.Header(), c.header)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(c.status)
	w.Write(body[:len(body)/2])
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	// returning with fewer bytes than announced makes the server drop the
	// connection
}

func (p DownloadInterruption) String() string {
	return "download_interruption(" + strconv.Itoa(p.Failures) + ")"
}

// MalformedJSON answers the first Failures attempts with a truncated
// document.
type MalformedJSON struct {
	Failures int
}

func (p MalformedJSON) Serve(attempt int, w http.ResponseWriter, r *http.Request, next http.Handler) {
	if attempt > p.Failures {
		next.ServeHTTP(w, r)
		return
	}
	c := record(next, r)
	body := c.body.Bytes()
	body = body[:len(body)/2]
	if len(body) == 0 {
		body = []byte("{")
	}
	c.header.Del("Content-Length")
	c.replayBody(w, body)
}

func (p MalformedJSON) String() string {
	return "malformed_json(" + strconv.Itoa(p.Failures) + ")"
}

// MalformedImage flips the first byte of the content for the first
// Failures attempts. The length is unchanged.
type MalformedImage struct {
	Failures int
}

func (p MalformedImage) Serve(attempt int, w http.ResponseWriter, r *http.Request, next http.Handler) {
	if attempt > p.Failures {
		next.ServeHTTP(w, r)
		return
	}
	c := record(next, r)
	if b := c.body.Bytes(); len(b) > 0 {
		b[0] ^= 0xff
	}
	c.replay(w)
}

func (p MalformedImage) String() string {
	return "malformed_image(" + strconv.Itoa(p.Failures) + ")"
}

// hopParam carries the redirect count so that Redirect stays stateless.
const hopParam = "fault-hop"

// Redirect sends the client through Hops redirects before serving the
// document.
type Redirect struct {
	Hops int
}

func (p Redirect) Serve(_ int, w http.ResponseWriter, r *http.Request, next http.Handler) {
	hop, _ := strconv.Atoi(r.URL.Query().Get(hopParam))
	if hop >= p.Hops {
		next.ServeHTTP(w, r)
		return
	}
	u := *r.URL
	q := u.Query()
	q.Set(hopParam, strconv.Itoa(hop+1))
	u.RawQuery = q.Encode()
	http.Redirect(w, r, (&url.URL{Path: u.Path, RawQuery: u.RawQuery}).String(), http.StatusFound)
}

func (p Redirect) String() string {
	return "redirect(" + strconv.Itoa(p.Hops) + ")"
}

// SlowRetrieval waits Delay before every response. A request cancelled by
// the client is abandoned.
type SlowRetrieval struct {
	Delay time.Duration
}

func (p SlowRetrieval) Serve(_ int, w http.ResponseWriter, r *http.Request, next http.Handler) {
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		next.ServeHTTP(w, r)
	case <-r.Context().Done():
	}
}

func (p SlowRetrieval) String() string {
	return "slow_retrieval(" + p.Delay.String() + ")"
}

// AlternateUnavailable answers every request with 503.
type AlternateUnavailable struct{}

func (AlternateUnavailable) Serve(_ int, w http.ResponseWriter, _ *http.Request, _ http.Handler) {
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
}

func (AlternateUnavailable) String() string {
	return "alternate_unavailable"
}

// capture buffers the response of a handler.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func record(h http.Handler, r *http.Request) *capture {
	c := &capture{header: http.Header{}}
	h.ServeHTTP(c, r)
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) replay(w http.ResponseWriter) {
	c.replayBody(w, c.body.Bytes())
}

func (c *capture) replayBody(w http.ResponseWriter, body []byte) {
	copyHeader(w.Header(), c.header)
	w.WriteHeader(c.status)
	w.Write(body)
}

func copyHeader(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}
