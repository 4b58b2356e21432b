/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// VerificationReport records the outcome of one verification session.
type VerificationReport struct {
	ID         int64
	Session    string
	EcuSerial  string
	TargetPath string // empty when no target was authorized
	Accepted   bool
	Code       string // empty when accepted
	Message    string
	Detail     []byte // CBOR
	CreatedAt  time.Time
}
