/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verifier

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/dcckit/dcc/pkg/cose"
	"github.com/dcckit/dcc/pkg/cwt"
	"github.com/dcckit/dcc/pkg/doc/dcc"
	"github.com/dcckit/dcc/pkg/transport"
	"github.com/dcckit/dcc/pkg/truststore"
)

var testNow = time.Date(2022, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestService_Verify(t *testing.T) {
	t.Parallel()

	signer := newSigner(t, nil)
	kid := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	store := truststore.New(truststore.TrustedCert{
		Country: "DE", Kid: kid, Certificate: signer.cert,
	})

	service := New(&Config{TrustStore: store, Now: func() time.Time { return testNow }})

	t.Run("valid certificate", func(t *testing.T) {
		t.Parallel()

		signed := signCertificate(t, signer.key, kid, vaccinationCert(), testNow.AddDate(10, 0, 0))

		cert, err := service.Verify(signed)
		require.NoError(t, err)
		require.Equal(t, "Robert Koch-Institut", cert.Issuer)
		require.Equal(t, 2, cert.Vaccination().DoseNumber)
		require.Equal(t, 2, cert.Vaccination().TotalDoses)
	})

	t.Run("expired claims fail before signature search", func(t *testing.T) {
		t.Parallel()

		// Signed by a key that is not in the trust store at all: expiry
		// must still win because it is checked first.
		stranger := newSigner(t, nil)
		signed := signCertificate(t, stranger.key, []byte{9, 9, 9, 9, 9, 9, 9, 9},
			vaccinationCert(), testNow.AddDate(0, 0, -1))

		_, err := service.Verify(signed)
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("untrusted signer fails with bad signature", func(t *testing.T) {
		t.Parallel()

		stranger := newSigner(t, nil)
		signed := signCertificate(t, stranger.key, kid, vaccinationCert(), testNow.AddDate(10, 0, 0))

		_, err := service.Verify(signed)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("empty trust store fails with bad signature", func(t *testing.T) {
		t.Parallel()

		emptyService := New(&Config{
			TrustStore: truststore.New(),
			Now:        func() time.Time { return testNow },
		})

		signed := signCertificate(t, signer.key, kid, vaccinationCert(), testNow.AddDate(10, 0, 0))

		_, err := emptyService.Verify(signed)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("kid mismatch falls back to full scan", func(t *testing.T) {
		t.Parallel()

		signed := signCertificate(t, signer.key, []byte{7, 7, 7, 7, 7, 7, 7, 7},
			vaccinationCert(), testNow.AddDate(10, 0, 0))

		cert, err := service.Verify(signed)
		require.NoError(t, err)
		require.NotNil(t, cert.Vaccination())
	})
}

func TestService_Verify_Oid(t *testing.T) {
	t.Parallel()

	kid := []byte{1, 1, 1, 1, 1, 1, 1, 1}

	testOnlySigner := newSigner(t, []string{"1.3.6.1.4.1.1847.2021.1.1"})
	unrelatedSigner := newSigner(t, []string{"1.2.3.4.5"})

	t.Run("mismatched usage rejected", func(t *testing.T) {
		t.Parallel()

		store := truststore.New(truststore.TrustedCert{
			Country: "DE", Kid: kid, Certificate: testOnlySigner.cert,
		})
		service := New(&Config{TrustStore: store, Now: func() time.Time { return testNow }})

		signed := signCertificate(t, testOnlySigner.key, kid, vaccinationCert(), testNow.AddDate(10, 0, 0))

		_, err := service.Verify(signed)
		require.ErrorIs(t, err, ErrOidMismatch)
	})

	t.Run("matching usage accepted", func(t *testing.T) {
		t.Parallel()

		store := truststore.New(truststore.TrustedCert{
			Country: "DE", Kid: kid, Certificate: testOnlySigner.cert,
		})
		service := New(&Config{TrustStore: store, Now: func() time.Time { return testNow }})

		signed := signCertificate(t, testOnlySigner.key, kid, testCert(), testNow.AddDate(10, 0, 0))

		cert, err := service.Verify(signed)
		require.NoError(t, err)
		require.NotNil(t, cert.Test())
	})

	t.Run("unrecognized usage treated as unrestricted", func(t *testing.T) {
		t.Parallel()

		store := truststore.New(truststore.TrustedCert{
			Country: "DE", Kid: kid, Certificate: unrelatedSigner.cert,
		})
		service := New(&Config{TrustStore: store, Now: func() time.Time { return testNow }})

		signed := signCertificate(t, unrelatedSigner.key, kid, vaccinationCert(), testNow.AddDate(10, 0, 0))

		_, err := service.Verify(signed)
		require.NoError(t, err)
	})
}

func TestService_DecodeQR(t *testing.T) {
	t.Parallel()

	signer := newSigner(t, nil)
	kid := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	store := truststore.New(truststore.TrustedCert{
		Country: "DE", Kid: kid, Certificate: signer.cert,
	})
	service := New(&Config{TrustStore: store, Now: func() time.Time { return testNow }})

	signed := signCertificate(t, signer.key, kid, vaccinationCert(), testNow.AddDate(10, 0, 0))

	raw, err := signed.Encode()
	require.NoError(t, err)

	qr := transport.Encode(raw)

	cert, err := service.DecodeQR(qr)
	require.NoError(t, err)
	require.Equal(t, "URN:UVCI:01DE/A1", cert.Entry().ID())

	_, err = service.DecodeQR("HC1:not base45 at all!!")
	var decodeErr *transport.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

type signerFixture struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
}

func newSigner(t *testing.T, extKeyUsageOids []string) *signerFixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Test DSC", Country: []string{"DE"}},
		NotBefore:    testNow.AddDate(0, -6, 0),
		NotAfter:     testNow.AddDate(2, 0, 0),
	}

	for _, oidStr := range extKeyUsageOids {
		template.UnknownExtKeyUsage = append(template.UnknownExtKeyUsage, mustOid(t, oidStr))
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &signerFixture{key: key, cert: cert}
}

func mustOid(t *testing.T, s string) asn1.ObjectIdentifier {
	t.Helper()

	var oid asn1.ObjectIdentifier

	var part int
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			oid = append(oid, part)
			part = 0

			continue
		}

		part = part*10 + int(s[i]-'0')
	}

	return oid
}

func vaccinationCert() dcc.Certificate {
	return dcc.Certificate{
		Name:      dcc.Name{GivenTransliterated: "ERIKA", FamilyTransliterated: "MUSTERMANN"},
		BirthDate: "1980-02-03",
		Version:   "1.3.0",
		Vaccinations: []dcc.Vaccination{{
			TargetDisease: "840539006",
			Product:       "EU/1/20/1528",
			DoseNumber:    2,
			TotalDoses:    2,
			Occurrence:    dcc.NewDate(2021, time.June, 1),
			Country:       "DE",
			UVCI:          "URN:UVCI:01DE/A1",
		}},
	}
}

func testCert() dcc.Certificate {
	return dcc.Certificate{
		Name:      dcc.Name{GivenTransliterated: "ERIKA", FamilyTransliterated: "MUSTERMANN"},
		BirthDate: "1980-02-03",
		Version:   "1.3.0",
		Tests: []dcc.Test{{
			TargetDisease: "840539006",
			TestType:      dcc.PCRTestCode,
			TestResult:    dcc.NegativeResultCode,
			UVCI:          "URN:UVCI:01DE/T1",
		}},
	}
}

func signCertificate(t *testing.T, key *ecdsa.PrivateKey, kid []byte,
	cert dcc.Certificate, validUntil time.Time) *cose.Sign1 {
	t.Helper()

	dgc, err := cbor.Marshal(cert)
	require.NoError(t, err)

	payload, err := (&cwt.Claims{
		Issuer:     "Robert Koch-Institut",
		ValidFrom:  testNow.AddDate(-1, 0, 0),
		ValidUntil: validUntil,
		DGC:        dgc,
	}).Encode()
	require.NoError(t, err)

	signed, err := cose.Sign(payload, key, kid)
	require.NoError(t, err)

	return signed
}
