/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"fmt"

	"github.com/kentakayama/uptane-trust/internal/util"
)

// ThresholdResult describes how a document fared against a role's keys.
type ThresholdResult struct {
	Valid     int
	Threshold int
	// Ignored counts signatures by keys outside the role's keyid set.
	Ignored int
}

// VerifyThreshold checks that s carries at least the threshold of distinct
// valid signatures from the keys root assigns to role. Signatures by keys
// not assigned to the role are ignored even when they verify. A public key
// declared under several key ids counts once.
func VerifyThreshold(s *Signed, role Role, root *Root, enc Encoding) (ThresholdResult, error) {
	rk, ok := root.Roles[role]
	if !ok {
		return ThresholdResult{}, newError(KindIllegalThreshold, role, fmt.Errorf("root version %d declares no %s role", root.Version, role))
	}
	res := ThresholdResult{Threshold: rk.Threshold}
	if rk.Threshold < MinThreshold || rk.Threshold > MaxThreshold {
		return res, newError(KindIllegalThreshold, role, fmt.Errorf("threshold %d", rk.Threshold))
	}

	canonical, err := CanonicalizeJSON(s.Body, enc)
	if err != nil {
		return res, newError(KindInvalidMetadata, s.Role, err)
	}

	allowed := util.NewSet[string]()
	for _, id := range rk.KeyIDs {
		allowed.Add(id)
	}

	seen := util.NewSet[string]()
	counted := util.NewSet[string]()
	for _, sig := range s.Signatures {
		if seen.Has(sig.KeyID) {
			return res, newError(KindNonUniqueSignatures, s.Role, fmt.Errorf("keyid %s signed twice", sig.KeyID))
		}
		seen.Add(sig.KeyID)

		if sig.Method == 0 {
			return res, newError(KindUnsupportedAlgorithm, s.Role, fmt.Errorf("%w: %q", ErrUnsupportedMethod, sig.RawMethod))
		}
		if !allowed.Has(sig.KeyID) {
			res.Ignored++
			continue
		}
		if !VerifySignature(sig, root.Keys, canonical) {
			continue
		}
		if m := root.Keys[sig.KeyID].material(); !counted.Has(m) {
			counted.Add(m)
			res.Valid++
		}
	}

	if res.Valid < rk.Threshold {
		return res, newError(KindUnmetThreshold, s.Role, fmt.Errorf("%d of %d required signatures", res.Valid, rk.Threshold))
	}
	return res, nil
}
