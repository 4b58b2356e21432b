/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane

import (
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

const (
	rankFatal = iota // not a verification outcome, e.g. a cancelled context
	rankMissingRepo
	rankRootChain
	rankMetadata
	rankTransient
	rankSelection
	rankInconsistent
	rankNone
)

func rank(err error) int {
	if err == nil {
		return rankNone
	}
	te, ok := tuf.AsTrustError(err)
	if !ok {
		return rankFatal
	}
	switch {
	case te.Kind == tuf.KindMissingRepo:
		return rankMissingRepo
	case te.Retryable():
		return rankTransient
	case te.Kind == tuf.KindRootRotationFailure,
		te.Kind == tuf.KindIllegalThreshold,
		te.Role == tuf.RoleRoot:
		return rankRootChain
	case te.Kind == tuf.KindTargetNotFound,
		te.Kind == tuf.KindBadHardwareID,
		te.Kind == tuf.KindDuplicateEcuTarget:
		return rankSelection
	case te.Kind == tuf.KindInconsistent:
		return rankInconsistent
	}
	return rankMetadata
}

// primary returns the failure to report among errs, earlier arguments
// winning ties.
func primary(errs ...error) error {
	var best error
	bestRank := rankNone
	for _, err := range errs {
		if r := rank(err); r < bestRank {
			best, bestRank = err, r
		}
	}
	return best
}
