/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kentakayama/uptane-trust/internal/domain/model"
)

// MetadataRepository handles metadata file persistence.
type MetadataRepository struct {
	db querier
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Create inserts or replaces a metadata file and returns its id.
func (r *MetadataRepository) Create(ctx context.Context, m *model.Metadata) (int64, error) {
	const q = `
		INSERT INTO metadata (repository, role, version, raw, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (repository, role, version)
		DO UPDATE SET raw = excluded.raw, created_at = excluded.created_at
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, m.Repository, m.Role, m.Version, m.Raw, m.CreatedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert metadata: %w", err)
	}
	return id, nil
}

// FindByVersion returns the file of a role at version, or nil when none is
// stored.
func (r *MetadataRepository) FindByVersion(ctx context.Context, repository, role string, version int) (*model.Metadata, error) {
	const q = `
		SELECT id, repository, role, version, raw, created_at
		FROM metadata
		WHERE repository = ? AND role = ? AND version = ?
		LIMIT 1
	`
	return scanMetadata(r.db.QueryRowContext(ctx, q, repository, role, version))
}

// FindLatest returns the highest numbered version of a role, or nil when
// only the unversioned copy (or nothing) is stored.
func (r *MetadataRepository) FindLatest(ctx context.Context, repository, role string) (*model.Metadata, error) {
	const q = `
		SELECT id, repository, role, version, raw, created_at
		FROM metadata
		WHERE repository = ? AND role = ? AND version > 0
		ORDER BY version DESC
		LIMIT 1
	`
	return scanMetadata(r.db.QueryRowContext(ctx, q, repository, role))
}

// ListByRepository returns every file of a repository ordered by role and
// version.
func (r *MetadataRepository) ListByRepository(ctx context.Context, repository string) ([]*model.Metadata, error) {
	const q = `
		SELECT id, repository, role, version, raw, created_at
		FROM metadata
		WHERE repository = ?
		ORDER BY role, version
	`
	rows, err := r.db.QueryContext(ctx, q, repository)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	var out []*model.Metadata
	for rows.Next() {
		var m model.Metadata
		if err := rows.Scan(&m.ID, &m.Repository, &m.Role, &m.Version, &m.Raw, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

func scanMetadata(row *sql.Row) (*model.Metadata, error) {
	var m model.Metadata
	if err := row.Scan(&m.ID, &m.Repository, &m.Role, &m.Version, &m.Raw, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	return &m, nil
}
