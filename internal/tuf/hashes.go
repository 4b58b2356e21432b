/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"
)

// HashAlgorithm is a digest algorithm recognised in "hashes" objects.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA512 HashAlgorithm = "sha512"
)

func (a HashAlgorithm) newHash() hash.Hash {
	switch a {
	case HashSHA256:
		return sha256.New()
	case HashSHA512:
		return sha512.New()
	}
	return nil
}

var errHashMismatch = errors.New("hash mismatch")

// Hashes maps algorithm to digest. Unknown algorithms are dropped while
// decoding.
type Hashes map[HashAlgorithm][]byte

func (h *Hashes) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Hashes, len(raw))
	for name, digest := range raw {
		alg := HashAlgorithm(name)
		if alg.newHash() == nil {
			continue
		}
		b, err := hex.DecodeString(digest)
		if err != nil {
			return fmt.Errorf("decode %s digest: %w", name, err)
		}
		out[alg] = b
	}
	*h = out
	return nil
}

func (h Hashes) MarshalJSON() ([]byte, error) {
	raw := make(map[string]string, len(h))
	for alg, digest := range h {
		raw[string(alg)] = hex.EncodeToString(digest)
	}
	return json.Marshal(raw)
}

// ComputeHashes returns the digests of data for every supported algorithm.
func ComputeHashes(data []byte) Hashes {
	return Hashes{
		HashSHA256: sum(HashSHA256, data),
		HashSHA512: sum(HashSHA512, data),
	}
}

func sum(alg HashAlgorithm, data []byte) []byte {
	h := alg.newHash()
	h.Write(data)
	return h.Sum(nil)
}

func (h Hashes) algorithms() []HashAlgorithm {
	algs := make([]HashAlgorithm, 0, len(h))
	for alg := range h {
		algs = append(algs, alg)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// Verify checks data against every declared digest.
func (h Hashes) Verify(data []byte) error {
	if len(h) == 0 {
		return ErrNoSupportedHash
	}
	for _, alg := range h.algorithms() {
		if !bytes.Equal(sum(alg, data), h[alg]) {
			return fmt.Errorf("%w: %s", errHashMismatch, alg)
		}
	}
	return nil
}

// Equal reports whether both sets share at least one algorithm and agree on
// every shared one.
func (h Hashes) Equal(other Hashes) bool {
	shared := 0
	for alg, digest := range h {
		o, ok := other[alg]
		if !ok {
			continue
		}
		if !bytes.Equal(digest, o) {
			return false
		}
		shared++
	}
	return shared > 0
}

// hashingWriter feeds every declared algorithm and counts the bytes.
type hashingWriter struct {
	hashes map[HashAlgorithm]hash.Hash
	n      int64
}

func newHashingWriter(h Hashes) *hashingWriter {
	w := &hashingWriter{hashes: make(map[HashAlgorithm]hash.Hash, len(h))}
	for alg := range h {
		w.hashes[alg] = alg.newHash()
	}
	return w
}

func (w *hashingWriter) Write(p []byte) (int, error) {
	for _, h := range w.hashes {
		h.Write(p)
	}
	w.n += int64(len(p))
	return len(p), nil
}

func (w *hashingWriter) matches(h Hashes) bool {
	for alg, digest := range h {
		if !bytes.Equal(w.hashes[alg].Sum(nil), digest) {
			return false
		}
	}
	return len(h) > 0
}

var _ io.Writer = (*hashingWriter)(nil)
