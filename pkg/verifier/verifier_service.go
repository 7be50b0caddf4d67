/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verifier implements trust-chain validation of signed
// health-certificate messages against a rotating trust store.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/internal/logfields"
	"github.com/dcckit/dcc/pkg/cose"
	"github.com/dcckit/dcc/pkg/cwt"
	"github.com/dcckit/dcc/pkg/doc/dcc"
	"github.com/dcckit/dcc/pkg/transport"
	"github.com/dcckit/dcc/pkg/truststore"
)

var logger = log.New("verifier")

// Terminal validation failures. Each maps to distinct caller guidance, so
// they must stay distinguishable via errors.Is.
var (
	// ErrExpired indicates the token was once valid but its validity
	// window has passed.
	ErrExpired = errors.New("certificate expired")

	// ErrBadSignature indicates no trusted certificate verified the
	// message signature.
	ErrBadSignature = errors.New("certificate signature untrusted")

	// ErrOidMismatch indicates the signing certificate's extended key
	// usage restricts it to a different entry type.
	ErrOidMismatch = errors.New("certificate entry type not covered by signer")
)

// Extended-key-usage OIDs restricting a document signer to one entry type.
// The zero-inserted variants stem from an early encoding mistake that is
// still present in circulating certificates.
var (
	vaccinationOids = []string{"1.3.6.1.4.1.1847.2021.1.2", "1.3.6.1.4.1.0.1847.2021.1.2"}
	testOids        = []string{"1.3.6.1.4.1.1847.2021.1.1", "1.3.6.1.4.1.0.1847.2021.1.1"}
	recoveryOids    = []string{"1.3.6.1.4.1.1847.2021.1.3", "1.3.6.1.4.1.0.1847.2021.1.3"}
)

type trustStore interface {
	FindByKid(kid []byte) []truststore.TrustedCert
	All() []truststore.TrustedCert
}

// Config configures the verifier Service.
type Config struct {
	TrustStore trustStore
	// Now is the validation clock. Defaults to time.Now.
	Now func() time.Time
}

// Service validates signed messages. It is safe for concurrent use; the
// trust store provides a consistent snapshot per call.
type Service struct {
	trustStore trustStore
	now        func() time.Time
}

// New builds a verifier Service.
func New(config *Config) *Service {
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		trustStore: config.TrustStore,
		now:        now,
	}
}

// DecodeQR runs the full pipeline on a QR payload: transport decode, parse,
// trust-chain validation and structural decoding into the typed model.
func (s *Service) DecodeQR(qr string) (*dcc.Certificate, error) {
	raw, err := transport.Decode(qr)
	if err != nil {
		return nil, err
	}

	signed, err := cose.Parse(raw)
	if err != nil {
		return nil, err
	}

	return s.Verify(signed)
}

// Verify validates a parsed signed message and returns the decoded
// certificate. Expiry is checked on the embedded claims before any
// signature work; final trust still requires a successful signature.
func (s *Service) Verify(signed *cose.Sign1) (*dcc.Certificate, error) {
	claims, err := cwt.Decode(signed.Payload)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if claims.ValidUntil.Before(now) {
		return nil, fmt.Errorf("%w: valid until %s", ErrExpired, claims.ValidUntil.Format(time.RFC3339))
	}

	kid := signed.Kid()

	candidates := s.trustStore.FindByKid(kid)
	if len(candidates) == 0 {
		// Some issuers omit or mismatch the kid; fall back to a linear
		// scan of the whole (small) trust set.
		candidates = s.trustStore.All()
	}

	for _, candidate := range candidates {
		if outsideValidity(candidate, now) {
			continue
		}

		if err := signed.Verify(candidate.Certificate.PublicKey); err != nil {
			continue
		}

		cert, err := dcc.Decode(claims)
		if err != nil {
			return nil, err
		}

		if err := checkCertOid(candidate, cert.Entry()); err != nil {
			return nil, err
		}

		logger.Debug("Certificate verified", logfields.WithKid(kid),
			logfields.WithCountry(candidate.Country))

		return cert, nil
	}

	return nil, fmt.Errorf("%w: no trusted signer for kid", ErrBadSignature)
}

func outsideValidity(candidate truststore.TrustedCert, now time.Time) bool {
	cert := candidate.Certificate
	if cert == nil {
		return true
	}

	return now.Before(cert.NotBefore) || now.After(cert.NotAfter)
}

// checkCertOid cross-checks the signer's extended key usage against the
// entry type. An absent or entirely unrecognized usage list is permitted;
// a recognized but mismatched one is rejected.
func checkCertOid(candidate truststore.TrustedCert, entry dcc.Entry) error {
	var usage []string
	for _, oid := range candidate.Certificate.UnknownExtKeyUsage {
		usage = append(usage, oid.String())
	}

	recognized := lo.Intersect(usage, append(append(append([]string{}, vaccinationOids...), testOids...), recoveryOids...))
	if len(recognized) == 0 {
		return nil
	}

	var allowed []string

	switch entry.(type) {
	case dcc.Vaccination:
		allowed = vaccinationOids
	case dcc.Test:
		allowed = testOids
	case dcc.Recovery:
		allowed = recoveryOids
	}

	if len(lo.Intersect(recognized, allowed)) == 0 {
		return fmt.Errorf("%w: signer usage %v", ErrOidMismatch, recognized)
	}

	return nil
}
