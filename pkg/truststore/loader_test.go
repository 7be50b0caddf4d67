/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package truststore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	distKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der := newSignerCertDER(t)
	kid := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	entry := ListEntry{
		CertificateType: "DSC",
		Country:         "DE",
		Kid:             base64.StdEncoding.EncodeToString(kid),
		RawData:         base64.StdEncoding.EncodeToString(der),
	}

	t.Run("valid list", func(t *testing.T) {
		signed := signList(t, distKey, []ListEntry{entry})

		certs, err := NewDecoder(&distKey.PublicKey).Decode(signed)
		require.NoError(t, err)
		require.Len(t, certs, 1)
		require.Equal(t, "DE", certs[0].Country)
		require.Equal(t, kid, certs[0].Kid)
		require.NotNil(t, certs[0].Certificate)
	})

	t.Run("tampered body", func(t *testing.T) {
		signed := signList(t, distKey, []ListEntry{entry})
		signed[len(signed)-1] ^= 0xff

		_, err := NewDecoder(&distKey.PublicKey).Decode(signed)
		require.ErrorIs(t, err, ErrBadListSignature)
	})

	t.Run("wrong distribution key", func(t *testing.T) {
		otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		signed := signList(t, distKey, []ListEntry{entry})

		_, err = NewDecoder(&otherKey.PublicKey).Decode(signed)
		require.ErrorIs(t, err, ErrBadListSignature)
	})

	t.Run("missing signature line", func(t *testing.T) {
		_, err := NewDecoder(&distKey.PublicKey).Decode([]byte(`{"certificates":[]}`))
		require.ErrorIs(t, err, ErrBadListSignature)
	})

	t.Run("unparseable entry is skipped", func(t *testing.T) {
		broken := ListEntry{
			Country: "FR",
			Kid:     base64.StdEncoding.EncodeToString(kid),
			RawData: base64.StdEncoding.EncodeToString([]byte("not a certificate")),
		}

		signed := signList(t, distKey, []ListEntry{entry, broken})

		certs, err := NewDecoder(&distKey.PublicKey).Decode(signed)
		require.NoError(t, err)
		require.Len(t, certs, 1)
		require.Equal(t, "DE", certs[0].Country)
	})
}

func newSignerCertDER(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "document signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return der
}

func signList(t *testing.T, key *ecdsa.PrivateKey, entries []ListEntry) []byte {
	t.Helper()

	body, err := json.Marshal(trustList{Certificates: entries})
	require.NoError(t, err)

	digest := sha256.Sum256(body)

	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	signed := []byte(base64.StdEncoding.EncodeToString(signature))
	signed = append(signed, '\n')

	return append(signed, body...)
}
