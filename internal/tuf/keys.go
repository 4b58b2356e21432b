/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
)

// KeyType is the "keytype" of a public key in root metadata.
type KeyType string

const (
	KeyTypeEd25519 KeyType = "ed25519"
	KeyTypeRSA     KeyType = "rsa"
)

func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(strings.ToLower(s)) {
	case KeyTypeEd25519:
		return KeyTypeEd25519, nil
	case KeyTypeRSA:
		return KeyTypeRSA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKeyType, s)
}

// Key is a public key together with its content-derived identifier.
type Key struct {
	ID   string
	Type KeyType
	// DeclaredType and Public are the values as written in metadata; the
	// key id is derived from them.
	DeclaredType string
	Public       string

	pub crypto.PublicKey
}

// CryptoKey returns the parsed public key.
func (k *Key) CryptoKey() crypto.PublicKey {
	return k.pub
}

// PublicKeyJSON is the wire form of a key in root's "keys" object.
type PublicKeyJSON struct {
	KeyType string `json:"keytype"`
	KeyVal  struct {
		Public string `json:"public"`
	} `json:"keyval"`
}

// JSON returns the wire form of k.
func (k *Key) JSON() PublicKeyJSON {
	var j PublicKeyJSON
	j.KeyType = k.DeclaredType
	j.KeyVal.Public = k.Public
	return j
}

// DeriveKeyID computes sha256 over the canonical form of
// {"keytype": keyType, "keyval": {"public": public}}.
func DeriveKeyID(keyType, public string, enc Encoding) (string, error) {
	src, err := KeyIDSource(keyType, public, enc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:]), nil
}

// KeyIDSource returns the bytes a key id is the digest of.
func KeyIDSource(keyType, public string, enc Encoding) ([]byte, error) {
	return Canonicalize(map[string]any{
		"keytype": keyType,
		"keyval":  map[string]any{"public": public},
	}, enc)
}

// ParseKey parses the public material of a key declared in metadata.
func ParseKey(keyType, public string, enc Encoding) (*Key, error) {
	kt, err := ParseKeyType(keyType)
	if err != nil {
		return nil, err
	}

	var pub crypto.PublicKey
	switch kt {
	case KeyTypeEd25519:
		raw, err := hex.DecodeString(strings.TrimSpace(public))
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrMalformedKey)
		}
		pub = ed25519.PublicKey(raw)
	case KeyTypeRSA:
		block, _ := pem.Decode([]byte(public))
		if block == nil {
			return nil, fmt.Errorf("%w: rsa public key is not PEM encoded", ErrMalformedKey)
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		rsaPub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: PEM block does not hold an rsa key", ErrMalformedKey)
		}
		pub = rsaPub
	}

	id, err := DeriveKeyID(keyType, public, enc)
	if err != nil {
		return nil, err
	}
	return &Key{ID: id, Type: kt, DeclaredType: keyType, Public: public, pub: pub}, nil
}

// material identifies the public key itself, whatever spelling of the key
// type its id was derived from.
func (k *Key) material() string {
	switch p := k.pub.(type) {
	case ed25519.PublicKey:
		return string(k.Type) + ":" + hex.EncodeToString(p)
	case *rsa.PublicKey:
		return fmt.Sprintf("%s:%x:%d", k.Type, p.N, p.E)
	}
	return string(k.Type) + ":" + k.Public
}

// NewKey builds a Key from an ed25519 or rsa public key.
func NewKey(pub crypto.PublicKey, enc Encoding) (*Key, error) {
	switch p := pub.(type) {
	case ed25519.PublicKey:
		return ParseKey(string(KeyTypeEd25519), hex.EncodeToString(p), enc)
	case *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(p)
		if err != nil {
			return nil, err
		}
		block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
		return ParseKey(string(KeyTypeRSA), strings.TrimSpace(string(block)), enc)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
}
