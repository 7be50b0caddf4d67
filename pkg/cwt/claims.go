/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cwt decodes the CBOR Web Token claims carried as the payload of a
// signed health-certificate message.
package cwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Registered claim keys (RFC 8392) plus the health certificate container
// claim used by the EU digital green certificate.
const (
	claimHealthCertificate = -260
	claimDGC               = 1
)

// ErrNoPayload indicates the token carries no health-certificate claim.
var ErrNoPayload = errors.New("cwt: no health certificate claim")

type rawClaims struct {
	Issuer    string                    `cbor:"1,keyasint,omitempty"`
	ExpiresAt int64                     `cbor:"4,keyasint,omitempty"`
	NotBefore int64                     `cbor:"5,keyasint,omitempty"`
	IssuedAt  int64                     `cbor:"6,keyasint,omitempty"`
	HCert     map[int64]cbor.RawMessage `cbor:"-260,keyasint,omitempty"`
}

// Claims is a decoded CBOR Web Token. DGC holds the raw serialized health
// certificate payload under the -260/1 claim; decoding it into the typed
// model is the health-certificate decoder's job.
type Claims struct {
	Issuer     string
	ValidFrom  time.Time
	ValidUntil time.Time
	DGC        []byte
}

// Decode parses token claims from the raw CWT payload bytes. The validity
// window is surfaced so callers can check expiry before any signature work.
func Decode(payload []byte) (*Claims, error) {
	var raw rawClaims

	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("cwt: decode claims: %w", err)
	}

	claims := &Claims{Issuer: raw.Issuer}

	if raw.ExpiresAt != 0 {
		claims.ValidUntil = time.Unix(raw.ExpiresAt, 0).UTC()
	}

	issuedAt := raw.IssuedAt
	if issuedAt == 0 {
		issuedAt = raw.NotBefore
	}

	if issuedAt != 0 {
		claims.ValidFrom = time.Unix(issuedAt, 0).UTC()
	}

	if dgc, ok := raw.HCert[claimDGC]; ok {
		claims.DGC = dgc
	}

	return claims, nil
}

// Encode serializes claims back into CWT payload bytes. Used when building
// certificates and fixtures.
func (c *Claims) Encode() ([]byte, error) {
	raw := rawClaims{Issuer: c.Issuer}

	if !c.ValidUntil.IsZero() {
		raw.ExpiresAt = c.ValidUntil.Unix()
	}

	if !c.ValidFrom.IsZero() {
		raw.IssuedAt = c.ValidFrom.Unix()
	}

	if len(c.DGC) > 0 {
		raw.HCert = map[int64]cbor.RawMessage{claimDGC: cbor.RawMessage(c.DGC)}
	}

	payload, err := cbor.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("cwt: encode claims: %w", err)
	}

	return payload, nil
}
