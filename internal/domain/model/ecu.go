/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

type Ecu struct {
	ID         int64
	Serial     string // unique
	HardwareID string
	Primary    bool
	CreatedAt  time.Time
}
