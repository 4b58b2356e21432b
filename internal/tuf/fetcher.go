/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"context"
	"errors"
	"io"

	"github.com/kentakayama/uptane-trust/internal/domain"
)

// Fetcher retrieves documents of a single repository. Errors wrap
// domain.ErrNotFound when the document does not exist and
// domain.ErrTransient when the request may be retried. Everything returned
// is untrusted.
type Fetcher interface {
	// FetchRole fetches "<role>.json" when version is 0, otherwise
	// "<version>.<role>.json".
	FetchRole(ctx context.Context, role Role, version int, maxSize int64) ([]byte, error)
	// FetchTarget opens the content of a target path.
	FetchTarget(ctx context.Context, path string, maxSize int64) (io.ReadCloser, error)
}

// URIFetcher is implemented by fetchers that can follow a target's custom
// "uri".
type URIFetcher interface {
	FetchURI(ctx context.Context, uri string, maxSize int64) (io.ReadCloser, error)
}

func fetchError(role Role, err error) *TrustError {
	return newError(KindMetadataFetchFailure, role, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
