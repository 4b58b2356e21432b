/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kentakayama/uptane-trust/internal/tuf"
)

// InstallRequest hands verified content to an Installer.
type InstallRequest struct {
	ECU    ECU
	Path   string
	Length int64
	Hashes tuf.Hashes
	// Content yields exactly the verified bytes.
	Content io.Reader
}

// Installer writes verified content to its destination.
type Installer interface {
	Install(ctx context.Context, req InstallRequest) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(ctx context.Context, req InstallRequest) error

func (f InstallerFunc) Install(ctx context.Context, req InstallRequest) error {
	return f(ctx, req)
}

// Fetch downloads the content of at once from the Image repository,
// following its custom uri when image can, and verifies it against the
// Director's and then the Image repository's declaration. At most
// at.Length+1 bytes are read.
func (v *Verifier) Fetch(ctx context.Context, at *AuthorizedTarget, image tuf.Fetcher) ([]byte, error) {
	content, err := v.fetch(ctx, at, image)
	v.metrics.observePayload(err)

	logger := v.logger.WithFields(logrus.Fields{"ecu": at.ECU.Serial, "target": at.Path})
	if err != nil {
		logger.WithField("code", codeLabel(err)).Warnf("target content rejected: %v", err)
		return nil, err
	}
	logger.Debug("target content verified")
	return content, nil
}

func (v *Verifier) fetch(ctx context.Context, at *AuthorizedTarget, image tuf.Fetcher) ([]byte, error) {
	if image == nil {
		return nil, &tuf.TrustError{Kind: tuf.KindMissingRepo, Repo: tuf.RepoImage}
	}
	limit := at.Length + 1

	var (
		rc  io.ReadCloser
		err error
	)
	if uf, ok := image.(tuf.URIFetcher); ok && at.URI != "" {
		rc, err = uf.FetchURI(ctx, at.URI, limit)
	} else {
		rc, err = image.FetchTarget(ctx, at.Path, limit)
	}
	if err != nil {
		return nil, &tuf.TrustError{Kind: tuf.KindTargetFetchFailure, Repo: tuf.RepoImage,
			Cause: fmt.Errorf("target %q: %w", at.Path, err)}
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return nil, &tuf.TrustError{Kind: tuf.KindTargetFetchFailure, Repo: tuf.RepoImage,
			Cause: fmt.Errorf("read target %q: %w", at.Path, err)}
	}

	for _, decl := range []struct {
		repo tuf.RepoKind
		t    *tuf.TargetFile
	}{{tuf.RepoDirector, at.Director}, {tuf.RepoImage, at.Image}} {
		if err := decl.t.Verify(bytes.NewReader(content)); err != nil {
			if te, ok := tuf.AsTrustError(err); ok && te.Repo == 0 {
				te.Repo = decl.repo
			}
			return nil, err
		}
	}
	return content, nil
}

// Install fetches and verifies the content of at, then passes it to
// installer. Nothing reaches installer unless both declarations match.
func (v *Verifier) Install(ctx context.Context, at *AuthorizedTarget, image tuf.Fetcher, installer Installer) error {
	content, err := v.Fetch(ctx, at, image)
	if err != nil {
		return err
	}
	return installer.Install(ctx, InstallRequest{
		ECU:     at.ECU,
		Path:    at.Path,
		Length:  at.Length,
		Hashes:  at.Hashes,
		Content: bytes.NewReader(content),
	})
}
