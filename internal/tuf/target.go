/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// TargetFile is one declared target.
type TargetFile struct {
	Path   string       `json:"-"`
	Length int64        `json:"length"`
	Hashes Hashes       `json:"hashes"`
	Custom TargetCustom `json:"custom"`
}

// EcuIdentifier is the value of a custom.ecuIdentifiers entry.
type EcuIdentifier struct {
	HardwareID string `json:"hardwareId"`
}

// TargetCustom carries the Uptane extensions of a target.
type TargetCustom struct {
	EcuIdentifiers map[string]EcuIdentifier `json:"ecuIdentifiers,omitempty"`
	HardwareIDs    []string                 `json:"hardwareIds,omitempty"`
	TargetFormat   string                   `json:"targetFormat,omitempty"`
	URI            string                   `json:"uri,omitempty"`
}

// UnmarshalJSON tolerates a "custom" value that is not an object, as long
// as the value itself is valid JSON.
func (c *TargetCustom) UnmarshalJSON(data []byte) error {
	type plain TargetCustom
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		var v json.RawMessage
		if json.Unmarshal(data, &v) == nil {
			*c = TargetCustom{}
			return nil
		}
		return err
	}
	*c = TargetCustom(p)
	return nil
}

// ECUs returns the serials the target is addressed to, sorted.
func (t *TargetFile) ECUs() []string {
	serials := make([]string, 0, len(t.Custom.EcuIdentifiers))
	for s := range t.Custom.EcuIdentifiers {
		serials = append(serials, s)
	}
	sort.Strings(serials)
	return serials
}

// ForECU reports whether the target is addressed to serial.
func (t *TargetFile) ForECU(serial string) (EcuIdentifier, bool) {
	id, ok := t.Custom.EcuIdentifiers[serial]
	return id, ok
}

// MatchesMetadata reports whether two declarations describe the same bytes.
func (t *TargetFile) MatchesMetadata(other *TargetFile) bool {
	if other == nil {
		return false
	}
	return t.Length == other.Length && t.Hashes.Equal(other.Hashes)
}

// Verify reads the content from r and checks it against the declared length
// and hashes. At most Length+1 bytes are consumed.
func (t *TargetFile) Verify(r io.Reader) error {
	w := newHashingWriter(t.Hashes)
	if _, err := io.Copy(w, io.LimitReader(r, t.Length+1)); err != nil {
		return newError(KindTargetFetchFailure, 0, fmt.Errorf("read target %q: %w", t.Path, err))
	}
	if w.n > t.Length {
		return newError(KindOversizedTarget, RoleTargets, fmt.Errorf("%q is longer than %d bytes", t.Path, t.Length))
	}
	if w.n < t.Length {
		return newError(KindTargetHashMismatch, RoleTargets, fmt.Errorf("%q is %d bytes, expected %d", t.Path, w.n, t.Length))
	}
	if !w.matches(t.Hashes) {
		return newError(KindTargetHashMismatch, RoleTargets, fmt.Errorf("%q: %w", t.Path, errHashMismatch))
	}
	return nil
}
