/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
)

// Encoding selects the canonical JSON dialect signatures are computed over.
type Encoding int

const (
	// EncodingJSON sorts object keys, drops whitespace and escapes strings
	// like standard JSON without HTML escaping.
	EncodingJSON Encoding = iota
	// EncodingOLPC is OLPC canonical JSON, which escapes only quote and
	// backslash.
	EncodingOLPC
)

var ErrNotCanonicalizable = errors.New("value cannot be canonically encoded")

func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingOLPC:
		return "olpc"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return EncodingJSON, nil
	case "olpc":
		return EncodingOLPC, nil
	}
	return 0, fmt.Errorf("unknown canonical encoding %q", s)
}

// Canonicalize encodes v, any value encoding/json can marshal, canonically.
func Canonicalize(v any, enc Encoding) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
	}
	return CanonicalizeJSON(raw, enc)
}

// CanonicalizeJSON re-encodes a JSON document canonically.
func CanonicalizeJSON(raw []byte, enc Encoding) ([]byte, error) {
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}

	switch enc {
	case EncodingJSON:
		var buf bytes.Buffer
		if err := writeCanonical(&buf, tree); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case EncodingOLPC:
		out, err := cjson.EncodeCanonical(tree)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown encoding %d", ErrNotCanonicalizable, enc)
}

func decodeTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrNotCanonicalizable)
	}
	return tree, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: non-integer number %s", ErrNotCanonicalizable, t)
		}
		buf.WriteString(strconv.FormatInt(n, 10))
	case string:
		writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unexpected type %T", ErrNotCanonicalizable, v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// encoding a string never fails
	_ = enc.Encode(s)
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
}
