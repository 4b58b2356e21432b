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

// EcuRepository handles ECU persistence.
type EcuRepository struct {
	db querier
}

func NewEcuRepository(db *sql.DB) *EcuRepository {
	return &EcuRepository{db: db}
}

// Create registers an ECU, updating the hardware id of a known serial.
func (r *EcuRepository) Create(ctx context.Context, e *model.Ecu) (int64, error) {
	const q = `
		INSERT INTO ecus (serial, hardware_id, is_primary, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (serial)
		DO UPDATE SET hardware_id = excluded.hardware_id, is_primary = excluded.is_primary
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, e.Serial, e.HardwareID, e.Primary, e.CreatedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert ecu: %w", err)
	}
	return id, nil
}

// FindBySerial returns an ECU by its serial, or nil when unknown.
func (r *EcuRepository) FindBySerial(ctx context.Context, serial string) (*model.Ecu, error) {
	const q = `
		SELECT id, serial, hardware_id, is_primary, created_at
		FROM ecus
		WHERE serial = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, serial)
	var e model.Ecu
	if err := row.Scan(&e.ID, &e.Serial, &e.HardwareID, &e.Primary, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ecu: %w", err)
	}
	return &e, nil
}

func (r *EcuRepository) List(ctx context.Context) ([]*model.Ecu, error) {
	const q = `
		SELECT id, serial, hardware_id, is_primary, created_at
		FROM ecus
		ORDER BY serial
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query ecus: %w", err)
	}
	defer rows.Close()

	var out []*model.Ecu
	for rows.Next() {
		var e model.Ecu
		if err := rows.Scan(&e.ID, &e.Serial, &e.HardwareID, &e.Primary, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ecu: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
