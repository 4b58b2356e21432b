/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PrettyCBOR decodes one CBOR data item and renders it as indented JSON.
// Byte strings become hex, tags become {"tag": n, "value": ...}.
func PrettyCBOR(raw []byte) (string, error) {
	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(jsonValue(v), "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func jsonValue(v any) any {
	switch v := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[keyString(k)] = jsonValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = jsonValue(e)
		}
		return out
	case []byte:
		return hex.EncodeToString(v)
	case cbor.Tag:
		return map[string]any{"tag": v.Number, "value": jsonValue(v.Content)}
	}
	return v
}

func keyString(k any) string {
	switch k := k.(type) {
	case string:
		return k
	case []byte:
		return hex.EncodeToString(k)
	}
	return fmt.Sprint(k)
}
