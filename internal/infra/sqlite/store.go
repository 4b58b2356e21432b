/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/kentakayama/uptane-trust/internal/domain"
	"github.com/kentakayama/uptane-trust/internal/domain/model"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

// Store bundles the repositories sharing one database.
type Store struct {
	db *sql.DB

	Metadata *MetadataRepository
	Targets  *TargetFileRepository
	Ecus     *EcuRepository
	Reports  *VerificationReportRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		Metadata: NewMetadataRepository(db),
		Targets:  NewTargetFileRepository(db),
		Ecus:     NewEcuRepository(db),
		Reports:  NewVerificationReportRepository(db),
	}
}

// Import stores a published repository in one transaction. files maps
// metadata file names such as "2.root.json" to their bytes, contents maps
// target paths to their content.
func (s *Store) Import(ctx context.Context, repo tuf.RepoKind, files, contents map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meta := &MetadataRepository{db: tx}
	targets := &TargetFileRepository{db: tx}
	now := time.Now().UTC()

	for name, raw := range files {
		role, version, err := tuf.ParseRoleFileName(name)
		if err != nil {
			return fmt.Errorf("import %s: %w", repo, err)
		}
		m := &model.Metadata{
			Repository: repo.String(),
			Role:       role.Name(),
			Version:    version,
			Raw:        raw,
			CreatedAt:  now,
		}
		if _, err := meta.Create(ctx, m); err != nil {
			return err
		}
	}
	for path, content := range contents {
		t := &model.TargetFile{
			Repository: repo.String(),
			Path:       path,
			Content:    content,
			CreatedAt:  now,
		}
		if _, err := targets.Create(ctx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Fetcher serves one repository of the store.
func (s *Store) Fetcher(repo tuf.RepoKind) *StoreFetcher {
	return &StoreFetcher{repo: repo.String(), metadata: s.Metadata, targets: s.Targets}
}

// StoreFetcher implements tuf.Fetcher over the database.
type StoreFetcher struct {
	repo     string
	metadata *MetadataRepository
	targets  *TargetFileRepository
}

var _ tuf.Fetcher = (*StoreFetcher)(nil)

func (f *StoreFetcher) FetchRole(ctx context.Context, role tuf.Role, version int, maxSize int64) ([]byte, error) {
	m, err := f.metadata.FindByVersion(ctx, f.repo, role.Name(), version)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%s/%s: %w", f.repo, tuf.RoleFileName(role, version), domain.ErrNotFound)
	}
	if maxSize > 0 && int64(len(m.Raw)) > maxSize {
		return nil, fmt.Errorf("%s/%s: %w", f.repo, tuf.RoleFileName(role, version), domain.ErrTooLarge)
	}
	return m.Raw, nil
}

func (f *StoreFetcher) FetchTarget(ctx context.Context, path string, maxSize int64) (io.ReadCloser, error) {
	t, err := f.targets.FindByPath(ctx, f.repo, path)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%s/targets/%s: %w", f.repo, path, domain.ErrNotFound)
	}
	var r io.Reader = bytes.NewReader(t.Content)
	if maxSize > 0 {
		r = io.LimitReader(r, maxSize)
	}
	return io.NopCloser(r), nil
}
