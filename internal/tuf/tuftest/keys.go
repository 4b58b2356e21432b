/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuftest

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"sync"
)

// KeyKind selects the signature scheme of a generated key.
type KeyKind int

const (
	Ed25519 KeyKind = iota
	RSA
)

func (k KeyKind) String() string {
	if k == RSA {
		return "rsa"
	}
	return "ed25519"
}

const rsaBits = 2048

var rsaPool = struct {
	sync.Mutex
	keys map[string]*rsa.PrivateKey
}{keys: map[string]*rsa.PrivateKey{}}

// newKey returns the private key named name. Ed25519 keys are derived from
// the name so that repeated builds publish the same key ids. RSA keys are
// generated once per name and process.
func newKey(kind KeyKind, name string) (crypto.Signer, error) {
	switch kind {
	case Ed25519:
		seed := sha256.Sum256([]byte("tuftest/" + name))
		return ed25519.NewKeyFromSeed(seed[:]), nil
	case RSA:
		rsaPool.Lock()
		defer rsaPool.Unlock()
		if k, ok := rsaPool.keys[name]; ok {
			return k, nil
		}
		k, err := rsa.GenerateKey(rand.Reader, rsaBits)
		if err != nil {
			return nil, err
		}
		rsaPool.keys[name] = k
		return k, nil
	}
	return nil, fmt.Errorf("unknown key kind %d", kind)
}
