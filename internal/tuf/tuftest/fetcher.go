/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuftest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"

	"github.com/kentakayama/uptane-trust/internal/domain"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

// MemoryFetcher serves a Repository from memory. Transient failures can be
// injected per file name.
type MemoryFetcher struct {
	mu       sync.Mutex
	files    map[string][]byte
	contents map[string][]byte
	failures map[string]int
	calls    []string
}

var _ tuf.Fetcher = (*MemoryFetcher)(nil)

func NewMemoryFetcher(r *Repository) *MemoryFetcher {
	return &MemoryFetcher{
		files:    maps.Clone(r.Files),
		contents: maps.Clone(r.Contents),
		failures: map[string]int{},
	}
}

// FailNext makes the next n requests for name fail with a transient error.
// Target content is named "targets/<path>".
func (f *MemoryFetcher) FailNext(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = n
}

// Remove unpublishes a metadata file, or the target content named
// "targets/<path>".
func (f *MemoryFetcher) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path, ok := strings.CutPrefix(name, "targets/"); ok {
		delete(f.contents, path)
		return
	}
	delete(f.files, name)
}

// Put replaces a metadata file.
func (f *MemoryFetcher) Put(name string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = raw
}

// Calls returns the names requested so far, in order.
func (f *MemoryFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *MemoryFetcher) take(name string) error {
	f.calls = append(f.calls, name)
	if f.failures[name] > 0 {
		f.failures[name]--
		return fmt.Errorf("%w: injected failure for %s", domain.ErrTransient, name)
	}
	return nil
}

func (f *MemoryFetcher) FetchRole(ctx context.Context, role tuf.Role, version int, maxSize int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := tuf.RoleFileName(role, version)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.take(name); err != nil {
		return nil, err
	}
	raw, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	}
	if maxSize > 0 && int64(len(raw)) > maxSize {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrTooLarge)
	}
	return bytes.Clone(raw), nil
}

func (f *MemoryFetcher) FetchTarget(ctx context.Context, path string, maxSize int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := "targets/" + path

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.take(name); err != nil {
		return nil, err
	}
	content, ok := f.contents[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	}
	var r io.Reader = bytes.NewReader(bytes.Clone(content))
	if maxSize > 0 {
		r = io.LimitReader(r, maxSize)
	}
	return io.NopCloser(r), nil
}
