/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package truststore

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/internal/logfields"
)

var logger = log.New("truststore")

// ErrBadListSignature indicates the trust-list distribution signature did
// not verify. No entry of such a list may be trusted.
var ErrBadListSignature = errors.New("trust list signature invalid")

// ListEntry is one raw entry of the distributed trust list.
type ListEntry struct {
	CertificateType string `json:"certificateType"`
	Country         string `json:"country"`
	Kid             string `json:"kid"`
	RawData         string `json:"rawData"`
	Signature       string `json:"signature"`
	Thumbprint      string `json:"thumbprint"`
	Timestamp       string `json:"timestamp"`
}

type trustList struct {
	Certificates []ListEntry `json:"certificates"`
}

// Decoder verifies and decodes trust-list payloads. The distribution public
// key is fixed and embedded in the consuming application.
type Decoder struct {
	pub *ecdsa.PublicKey
}

// NewDecoder builds a Decoder trusting the given distribution key.
func NewDecoder(pub *ecdsa.PublicKey) *Decoder {
	return &Decoder{pub: pub}
}

// Decode verifies the detached signature on the first line of data against
// the JSON body on the remainder, then decodes the body into trusted
// certificates. Entries whose certificate bytes do not parse are skipped,
// not fatal: one broken entry must not take down the whole refresh.
func (d *Decoder) Decode(data []byte) ([]TrustedCert, error) {
	sigLine, body, found := bytes.Cut(data, []byte("\n"))
	if !found {
		return nil, fmt.Errorf("%w: missing signature line", ErrBadListSignature)
	}

	signature, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(sigLine)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadListSignature, err)
	}

	digest := sha256.Sum256(body)
	if !ecdsa.VerifyASN1(d.pub, digest[:], signature) {
		return nil, ErrBadListSignature
	}

	var list trustList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode trust list body: %w", err)
	}

	certs := make([]TrustedCert, 0, len(list.Certificates))

	for _, entry := range list.Certificates {
		cert, err := entry.toTrustedCert()
		if err != nil {
			logger.Warn("Skipping unparseable trust list entry",
				logfields.WithCountry(entry.Country), log.WithError(err))

			continue
		}

		certs = append(certs, cert)
	}

	return certs, nil
}

func (e ListEntry) toTrustedCert() (TrustedCert, error) {
	kid, err := base64.StdEncoding.DecodeString(e.Kid)
	if err != nil {
		return TrustedCert{}, fmt.Errorf("decode kid: %w", err)
	}

	der, err := base64.StdEncoding.DecodeString(e.RawData)
	if err != nil {
		return TrustedCert{}, fmt.Errorf("decode certificate data: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return TrustedCert{}, fmt.Errorf("parse certificate: %w", err)
	}

	return TrustedCert{Country: e.Country, Kid: kid, Certificate: cert}, nil
}
