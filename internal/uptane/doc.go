/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package uptane decides whether an update addressed to an ECU is
// authorized by both the Director and the Image repository.
//
// Each repository is verified on its own by package tuf. The Verifier then
// selects the Director's target for the ECU, requires the Image repository
// to declare identical metadata for it, and reports a single failure when
// several occur:
//
//  1. a missing repository
//  2. a root chain failure
//  3. any other metadata failure
//  4. a transient fetch failure
//  5. a Director target selection failure
//  6. an inconsistency between the repositories
//
// The lowest rank wins; on a tie the Director's failure is reported.
package uptane
