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

// VerificationReportRepository handles verification report persistence.
type VerificationReportRepository struct {
	db querier
}

func NewVerificationReportRepository(db *sql.DB) *VerificationReportRepository {
	return &VerificationReportRepository{db: db}
}

// Create inserts a new report and returns the inserted id.
func (r *VerificationReportRepository) Create(ctx context.Context, v *model.VerificationReport) (int64, error) {
	const q = `
		INSERT INTO verification_reports (session, ecu_serial, target_path, accepted, code, message, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, q, v.Session, v.EcuSerial, v.TargetPath, v.Accepted, v.Code, v.Message, v.Detail, v.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert verification report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindBySession returns the report of a session, or nil when none exists.
func (r *VerificationReportRepository) FindBySession(ctx context.Context, session string) (*model.VerificationReport, error) {
	const q = `
		SELECT id, session, ecu_serial, target_path, accepted, code, message, detail, created_at
		FROM verification_reports
		WHERE session = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, session)
	var v model.VerificationReport
	if err := row.Scan(&v.ID, &v.Session, &v.EcuSerial, &v.TargetPath, &v.Accepted, &v.Code, &v.Message, &v.Detail, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan verification report: %w", err)
	}
	return &v, nil
}

// ListByEcu returns up to limit reports of an ECU, newest first. A
// non-positive limit returns all of them.
func (r *VerificationReportRepository) ListByEcu(ctx context.Context, serial string, limit int) ([]*model.VerificationReport, error) {
	const q = `
		SELECT id, session, ecu_serial, target_path, accepted, code, message, detail, created_at
		FROM verification_reports
		WHERE ecu_serial = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, q, serial, limit)
	if err != nil {
		return nil, fmt.Errorf("query verification reports: %w", err)
	}
	defer rows.Close()

	var out []*model.VerificationReport
	for rows.Next() {
		var v model.VerificationReport
		if err := rows.Scan(&v.ID, &v.Session, &v.EcuSerial, &v.TargetPath, &v.Accepted, &v.Code, &v.Message, &v.Detail, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification report: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification reports: %w", err)
	}
	return out, nil
}
