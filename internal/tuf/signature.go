/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/veraison/go-cose"
)

// Method is the closed set of signature schemes.
type Method int

const (
	MethodEd25519 Method = iota + 1
	MethodRSAPSSSHA256
)

func (m Method) String() string {
	switch m {
	case MethodEd25519:
		return "ed25519"
	case MethodRSAPSSSHA256:
		return "rsassa-pss-sha256"
	}
	return ""
}

// ParseMethod accepts the method names seen in metadata, including the
// legacy "rsassa-pss" alias.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "ed25519":
		return MethodEd25519, nil
	case "rsassa-pss-sha256", "rsassa-pss":
		return MethodRSAPSSSHA256, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

// KeyType is the key type the method verifies with.
func (m Method) KeyType() KeyType {
	switch m {
	case MethodEd25519:
		return KeyTypeEd25519
	case MethodRSAPSSSHA256:
		return KeyTypeRSA
	}
	return ""
}

func (m Method) verifier(k *Key) (cose.Verifier, error) {
	switch m {
	case MethodEd25519:
		pub, ok := k.pub.(ed25519.PublicKey)
		if !ok {
			return nil, ErrKeyMethodMismatch
		}
		return cose.NewVerifier(cose.AlgorithmEdDSA, pub)
	case MethodRSAPSSSHA256:
		pub, ok := k.pub.(*rsa.PublicKey)
		if !ok {
			return nil, ErrKeyMethodMismatch
		}
		return cose.NewVerifier(cose.AlgorithmPS256, pub)
	}
	return nil, ErrUnsupportedMethod
}

// SignatureEncoding is how signature bytes are written in "sig".
type SignatureEncoding int

const (
	SignatureHex SignatureEncoding = iota
	SignatureBase64
	// SignatureAuto tries hex, then base64.
	SignatureAuto
)

func ParseSignatureEncoding(s string) (SignatureEncoding, error) {
	switch strings.ToLower(s) {
	case "", "hex":
		return SignatureHex, nil
	case "base64":
		return SignatureBase64, nil
	case "auto":
		return SignatureAuto, nil
	}
	return 0, fmt.Errorf("unknown signature encoding %q", s)
}

func (e SignatureEncoding) decode(s string) ([]byte, error) {
	switch e {
	case SignatureHex:
		return hex.DecodeString(s)
	case SignatureBase64:
		return base64.StdEncoding.DecodeString(s)
	case SignatureAuto:
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
		return base64.StdEncoding.DecodeString(s)
	}
	return nil, fmt.Errorf("unknown signature encoding %d", e)
}

func (e SignatureEncoding) encode(b []byte) string {
	if e == SignatureBase64 {
		return base64.StdEncoding.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}

// Signature is one entry of a document's "signatures" list. Method is zero
// when the declared method is not supported; RawMethod keeps the declared
// value.
type Signature struct {
	KeyID     string
	Method    Method
	RawMethod string
	Value     []byte
}

// WireSignature is the JSON form of a Signature.
type WireSignature struct {
	KeyID  string `json:"keyid"`
	Method string `json:"method"`
	Sig    string `json:"sig"`
}

// Wire returns the JSON form of s with its value written in enc.
func (s Signature) Wire(enc SignatureEncoding) WireSignature {
	method := s.RawMethod
	if method == "" {
		method = s.Method.String()
	}
	return WireSignature{KeyID: s.KeyID, Method: method, Sig: enc.encode(s.Value)}
}

// VerifySignature checks sig over canonical with the key sig.KeyID names in
// keys. Unknown keys, mismatching methods and bad signatures yield false.
func VerifySignature(sig Signature, keys map[string]*Key, canonical []byte) bool {
	k, ok := keys[sig.KeyID]
	if !ok || len(sig.Value) == 0 {
		return false
	}
	v, err := sig.Method.verifier(k)
	if err != nil {
		return false
	}
	return v.Verify(canonical, sig.Value) == nil
}

// Signer produces signatures for one private key.
type Signer struct {
	Key    *Key
	Method Method
	signer cose.Signer
}

// NewSigner wraps an ed25519.PrivateKey or *rsa.PrivateKey.
func NewSigner(priv crypto.Signer, enc Encoding) (*Signer, error) {
	var (
		alg    cose.Algorithm
		method Method
	)
	switch priv.(type) {
	case ed25519.PrivateKey:
		alg, method = cose.AlgorithmEdDSA, MethodEd25519
	case *rsa.PrivateKey:
		alg, method = cose.AlgorithmPS256, MethodRSAPSSSHA256
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, priv)
	}

	signer, err := cose.NewSigner(alg, priv)
	if err != nil {
		return nil, err
	}
	key, err := NewKey(priv.Public(), enc)
	if err != nil {
		return nil, err
	}
	return &Signer{Key: key, Method: method, signer: signer}, nil
}

// Sign signs canonical bytes.
func (s *Signer) Sign(canonical []byte) (Signature, error) {
	value, err := s.signer.Sign(rand.Reader, canonical)
	if err != nil {
		return Signature{}, err
	}
	return Signature{KeyID: s.Key.ID, Method: s.Method, RawMethod: s.Method.String(), Value: value}, nil
}
