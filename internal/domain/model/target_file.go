/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// TargetFile is the stored content of a target.
type TargetFile struct {
	ID         int64
	Repository string
	Path       string
	Content    []byte
	CreatedAt  time.Time
}
