/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/uptane-trust/internal/tuf"
)

func signers(t *testing.T, prefix string, n int) []*tuf.Signer {
	t.Helper()
	out := make([]*tuf.Signer, 0, n)
	for i := 0; i < n; i++ {
		s, err := tuf.NewSigner(ed25519Key(t, fmt.Sprintf("%s-%d", prefix, i)), tuf.EncodingJSON)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

// rootWithTargetsKeys returns a root assigning keys to the targets role with
// the given threshold, and one key to each other role.
func rootWithTargetsKeys(t *testing.T, keys []*tuf.Signer, threshold int) *tuf.Root {
	t.Helper()
	other := signers(t, "other", 1)[0]

	ids := make([]string, 0, len(keys))
	keyMap := map[string]any{other.Key.ID: other.Key.JSON()}
	for _, k := range keys {
		ids = append(ids, k.Key.ID)
		keyMap[k.Key.ID] = k.Key.JSON()
	}
	single := map[string]any{"keyids": []string{other.Key.ID}, "threshold": 1}
	signed := map[string]any{
		"_type":   "Root",
		"version": 1,
		"expires": "2038-01-19T03:14:06Z",
		"keys":    keyMap,
		"roles": map[string]any{
			"root":      single,
			"snapshot":  single,
			"timestamp": single,
			"targets":   map[string]any{"keyids": ids, "threshold": threshold},
		},
	}
	env, err := tuf.SignDocument(signed, []*tuf.Signer{other}, tuf.ParseOptions{})
	require.NoError(t, err)
	raw, err := jsonBytes(env)
	require.NoError(t, err)
	root, err := tuf.ParseRoot(raw, tuf.ParseOptions{})
	require.NoError(t, err)
	return root
}

func signedTargets(t *testing.T, by []*tuf.Signer, mutate func(*tuf.Envelope)) *tuf.Signed {
	t.Helper()
	signed := map[string]any{
		"_type":   "Targets",
		"version": 1,
		"expires": "2038-01-19T03:14:06Z",
		"targets": map[string]any{},
	}
	env, err := tuf.SignDocument(signed, by, tuf.ParseOptions{})
	require.NoError(t, err)
	if mutate != nil {
		mutate(env)
	}
	raw, err := jsonBytes(env)
	require.NoError(t, err)
	s, _, err := tuf.ParseSigned(raw, tuf.RoleTargets, tuf.ParseOptions{})
	require.NoError(t, err)
	return s
}

func TestVerifyThreshold_ExactlyAtThreshold(t *testing.T) {
	keys := signers(t, "targets", 3)
	root := rootWithTargetsKeys(t, keys, 2)

	res, err := tuf.VerifyThreshold(signedTargets(t, keys[:2], nil), tuf.RoleTargets, root, tuf.EncodingJSON)
	require.NoError(t, err)
	assert.Equal(t, tuf.ThresholdResult{Valid: 2, Threshold: 2}, res)
}

func TestVerifyThreshold_OneShort(t *testing.T) {
	keys := signers(t, "targets", 3)
	root := rootWithTargetsKeys(t, keys, 3)

	res, err := tuf.VerifyThreshold(signedTargets(t, keys[:2], nil), tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "UnmetThreshold::Targets", tuf.CodeOf(err))
	assert.ErrorIs(t, err, tuf.ErrUnmetThreshold)
	assert.Equal(t, 2, res.Valid)
}

func TestVerifyThreshold_IgnoresKeysOutsideRole(t *testing.T) {
	keys := signers(t, "targets", 1)
	root := rootWithTargetsKeys(t, keys, 1)
	outsider := signers(t, "outsider", 1)

	res, err := tuf.VerifyThreshold(signedTargets(t, append(outsider, keys...), nil), tuf.RoleTargets, root, tuf.EncodingJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 1, res.Ignored)

	// a key of another role does not count either
	_, err = tuf.VerifyThreshold(signedTargets(t, signers(t, "other", 1), nil), tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "UnmetThreshold::Targets", tuf.CodeOf(err))
}

func TestVerifyThreshold_DuplicateKeyID(t *testing.T) {
	keys := signers(t, "targets", 2)
	root := rootWithTargetsKeys(t, keys, 2)

	s := signedTargets(t, keys[:1], func(env *tuf.Envelope) {
		env.Signatures = append(env.Signatures, env.Signatures[0])
	})
	_, err := tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "NonUniqueSignatures::Targets", tuf.CodeOf(err))
}

func TestVerifyThreshold_SameKeyUnderTwoKeyIDs(t *testing.T) {
	keys := signers(t, "targets", 1)
	// the key type is matched case-insensitively but hashed as written, so
	// one public key yields a second valid key id
	upper, err := tuf.ParseKey("ED25519", keys[0].Key.Public, tuf.EncodingJSON)
	require.NoError(t, err)
	require.NotEqual(t, keys[0].Key.ID, upper.ID)
	alias := *keys[0]
	alias.Key = upper
	root := rootWithTargetsKeys(t, []*tuf.Signer{keys[0], &alias}, 2)

	s := signedTargets(t, keys, func(env *tuf.Envelope) {
		copied := env.Signatures[0]
		copied.KeyID = upper.ID
		env.Signatures = append(env.Signatures, copied)
	})
	res, err := tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "UnmetThreshold::Targets", tuf.CodeOf(err))
	assert.Equal(t, 1, res.Valid)

	// at threshold 1 the pair still verifies
	root = rootWithTargetsKeys(t, []*tuf.Signer{keys[0], &alias}, 1)
	res, err = tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Valid)
}

func TestVerifyThreshold_UnsupportedMethod(t *testing.T) {
	keys := signers(t, "targets", 1)
	root := rootWithTargetsKeys(t, keys, 1)

	s := signedTargets(t, keys, func(env *tuf.Envelope) {
		env.Signatures[0].Method = "ecdsa-sha2-nistp256"
	})
	_, err := tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "UnsupportedAlgorithm::Targets", tuf.CodeOf(err))
	assert.ErrorIs(t, err, tuf.ErrUnsupportedMethod)
}

func TestVerifyThreshold_BadSignatureIsNotCounted(t *testing.T) {
	keys := signers(t, "targets", 2)
	root := rootWithTargetsKeys(t, keys, 2)

	s := signedTargets(t, keys, func(env *tuf.Envelope) {
		env.Signatures[1].Sig = env.Signatures[0].Sig
	})
	res, err := tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "UnmetThreshold::Targets", tuf.CodeOf(err))
	assert.Equal(t, 1, res.Valid)
}

func TestVerifyThreshold_SignatureOverReorderedBody(t *testing.T) {
	keys := signers(t, "targets", 1)
	root := rootWithTargetsKeys(t, keys, 1)

	s := signedTargets(t, keys, nil)
	// a publisher may serialize the signed object in any order and spacing
	s.Body = []byte(`{ "version": 1, "targets": {}, "expires": "2038-01-19T03:14:06Z", "_type": "Targets" }`)
	_, err := tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.NoError(t, err)

	s.Body = []byte(`{"version": 2, "targets": {}, "expires": "2038-01-19T03:14:06Z", "_type": "Targets"}`)
	_, err = tuf.VerifyThreshold(s, tuf.RoleTargets, root, tuf.EncodingJSON)
	assert.Equal(t, "UnmetThreshold::Targets", tuf.CodeOf(err))
}
