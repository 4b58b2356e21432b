/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import "errors"

var (
	ErrNotFound  = errors.New("item not found")
	ErrTransient = errors.New("transient failure")
	ErrTooLarge  = errors.New("item exceeds size limit")
)
