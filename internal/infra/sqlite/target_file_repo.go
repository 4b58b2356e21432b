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

// TargetFileRepository handles target content persistence.
type TargetFileRepository struct {
	db querier
}

func NewTargetFileRepository(db *sql.DB) *TargetFileRepository {
	return &TargetFileRepository{db: db}
}

// Create inserts or replaces the content of a target and returns its id.
func (r *TargetFileRepository) Create(ctx context.Context, t *model.TargetFile) (int64, error) {
	const q = `
		INSERT INTO target_files (repository, path, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (repository, path)
		DO UPDATE SET content = excluded.content, created_at = excluded.created_at
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, t.Repository, t.Path, t.Content, t.CreatedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert target file: %w", err)
	}
	return id, nil
}

// FindByPath returns a target by its path, or nil when none is stored.
func (r *TargetFileRepository) FindByPath(ctx context.Context, repository, path string) (*model.TargetFile, error) {
	const q = `
		SELECT id, repository, path, content, created_at
		FROM target_files
		WHERE repository = ? AND path = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, repository, path)
	var t model.TargetFile
	if err := row.Scan(&t.ID, &t.Repository, &t.Path, &t.Content, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan target file: %w", err)
	}
	return &t, nil
}
