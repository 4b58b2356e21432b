/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// Metadata is one published metadata file of a repository.
type Metadata struct {
	ID         int64
	Repository string // "director" or "image"
	Role       string // "root", "targets", "snapshot", "timestamp"
	Version    int    // 0 for the copy published under "<role>.json"
	Raw        []byte
	CreatedAt  time.Time
}
