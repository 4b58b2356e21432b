/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"

	"github.com/kentakayama/uptane-trust/internal/domain/model"
)

// MetadataRepository defines the interface for metadata file persistence.
type MetadataRepository interface {
	// Create stores m, replacing a file with the same repository, role and
	// version.
	Create(ctx context.Context, m *model.Metadata) (int64, error)
	FindByVersion(ctx context.Context, repository, role string, version int) (*model.Metadata, error)
	FindLatest(ctx context.Context, repository, role string) (*model.Metadata, error)
	ListByRepository(ctx context.Context, repository string) ([]*model.Metadata, error)
}

// TargetFileRepository defines the interface for target content persistence.
type TargetFileRepository interface {
	Create(ctx context.Context, t *model.TargetFile) (int64, error)
	FindByPath(ctx context.Context, repository, path string) (*model.TargetFile, error)
}

// EcuRepository defines the interface for ECU persistence.
type EcuRepository interface {
	Create(ctx context.Context, e *model.Ecu) (int64, error)
	FindBySerial(ctx context.Context, serial string) (*model.Ecu, error)
	List(ctx context.Context) ([]*model.Ecu, error)
}

// VerificationReportRepository defines the interface for verification report persistence.
type VerificationReportRepository interface {
	Create(ctx context.Context, r *model.VerificationReport) (int64, error)
	FindBySession(ctx context.Context, session string) (*model.VerificationReport, error)
	ListByEcu(ctx context.Context, serial string, limit int) ([]*model.VerificationReport, error)
}
