/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	kid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	payload := []byte("claims payload")

	signed, err := Sign(payload, key, kid)
	require.NoError(t, err)

	raw, err := signed.Encode()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, payload, parsed.Payload)
	require.Equal(t, kid, parsed.Kid())
	require.EqualValues(t, -7, parsed.Alg())

	require.NoError(t, parsed.Verify(&key.PublicKey))
}

func TestParse_NotSign1(t *testing.T) {
	t.Parallel()

	for _, raw := range [][]byte{
		nil,
		[]byte("not cbor at all"),
		mustMarshal(t, map[string]string{"a": "b"}),
		mustMarshal(t, []string{"just", "strings"}),
	} {
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrNotSign1)
	}
}

func TestKid_UnprotectedFallbackAndTruncation(t *testing.T) {
	t.Parallel()

	longKid := make([]byte, 32)
	for i := range longKid {
		longKid[i] = byte(i)
	}

	raw := mustMarshal(t, sign1Message{
		Protected:   nil,
		Unprotected: header{Kid: longKid},
		Payload:     []byte("p"),
		Signature:   []byte("s"),
	})

	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, longKid[:KidSize], parsed.Kid())
}

func TestVerify_WrongKey(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signed, err := Sign([]byte("payload"), key, []byte{1})
	require.NoError(t, err)

	require.NoError(t, signed.Verify(&key.PublicKey))
	require.Error(t, signed.Verify(&otherKey.PublicKey))
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signed, err := Sign([]byte("payload"), key, []byte{1})
	require.NoError(t, err)

	signed.Payload = []byte("tampered")
	require.Error(t, signed.Verify(&key.PublicKey))
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()

	raw, err := cbor.Marshal(v)
	require.NoError(t, err)

	return raw
}
