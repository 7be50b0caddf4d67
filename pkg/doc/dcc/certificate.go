/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dcc holds the typed health-certificate data model and the
// structural decoder from CBOR Web Token claims.
package dcc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dcckit/dcc/pkg/cwt"
)

// SupportedMajorVersion is the major schema version this decoder
// understands.
const SupportedMajorVersion = 1

var (
	// ErrNoEntry indicates the decoded certificate carries no vaccination,
	// test or recovery entry. Such a certificate is invalid.
	ErrNoEntry = errors.New("certificate has no entry")

	// ErrUnsupportedVersion indicates the certificate schema version is not
	// understood.
	ErrUnsupportedVersion = errors.New("unsupported certificate schema version")
)

// Certificate is the decoded health certificate. Issuer and validity come
// from the verified CWT envelope, everything else from the embedded
// certificate payload. The entry lists are a legacy artifact of the EU data
// model; only the first element of the single non-empty list is used.
type Certificate struct {
	Issuer     string    `cbor:"-" json:"-"`
	ValidFrom  time.Time `cbor:"-" json:"-"`
	ValidUntil time.Time `cbor:"-" json:"-"`

	Name         Name          `cbor:"nam" json:"nam"`
	BirthDate    string        `cbor:"dob" json:"dob"`
	Vaccinations []Vaccination `cbor:"v,omitempty" json:"v,omitempty"`
	Tests        []Test        `cbor:"t,omitempty" json:"t,omitempty"`
	Recoveries   []Recovery    `cbor:"r,omitempty" json:"r,omitempty"`
	Version      string        `cbor:"ver" json:"ver"`
}

// Decode maps validated claims into the typed certificate model. It fails
// with ErrNoEntry when no entry list has elements and with
// ErrUnsupportedVersion for an unknown schema major version.
func Decode(claims *cwt.Claims) (*Certificate, error) {
	if len(claims.DGC) == 0 {
		return nil, fmt.Errorf("decode certificate: %w", cwt.ErrNoPayload)
	}

	var cert Certificate
	if err := cbor.Unmarshal(claims.DGC, &cert); err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}

	if major, ok := majorVersion(cert.Version); !ok || major != SupportedMajorVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, cert.Version)
	}

	if cert.Entry() == nil {
		return nil, ErrNoEntry
	}

	cert.Issuer = claims.Issuer
	cert.ValidFrom = claims.ValidFrom
	cert.ValidUntil = claims.ValidUntil

	return &cert, nil
}

func majorVersion(version string) (int, bool) {
	head, _, _ := strings.Cut(version, ".")

	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}

	return major, true
}

// Entry returns the canonical entry: the first element across the
// vaccination, test and recovery lists, or nil for an entry-less payload.
func (c *Certificate) Entry() Entry {
	switch {
	case len(c.Vaccinations) > 0:
		return c.Vaccinations[0]
	case len(c.Tests) > 0:
		return c.Tests[0]
	case len(c.Recoveries) > 0:
		return c.Recoveries[0]
	default:
		return nil
	}
}

// Vaccination returns the active vaccination entry, if any.
func (c *Certificate) Vaccination() *Vaccination {
	if len(c.Vaccinations) == 0 {
		return nil
	}

	return &c.Vaccinations[0]
}

// Test returns the active test entry, if any.
func (c *Certificate) Test() *Test {
	if len(c.Tests) == 0 {
		return nil
	}

	return &c.Tests[0]
}

// Recovery returns the active recovery entry, if any.
func (c *Certificate) Recovery() *Recovery {
	if len(c.Recoveries) == 0 {
		return nil
	}

	return &c.Recoveries[0]
}

// IsExpiredAt reports whether the envelope validity window has passed.
func (c *Certificate) IsExpiredAt(now time.Time) bool {
	return !c.ValidUntil.IsZero() && c.ValidUntil.Before(now)
}

// FormattedBirthDate normalizes the holder birth date for display. Partial
// dates are padded with "XX" placeholders; anything unparseable is returned
// verbatim.
func (c *Certificate) FormattedBirthDate() string {
	return FormatBirthDate(c.BirthDate)
}

// FormatBirthDate normalizes a birth date string of the forms "YYYY-MM-DD",
// "YYYY-MM", "YYYY" or "" into the "YYYY-MM-DD"-with-placeholder display
// representation. Malformed input is returned unchanged, never rejected.
func FormatBirthDate(birthDate string) string {
	switch {
	case birthDate == "":
		return ""
	case isDigits(birthDate, 4):
		return birthDate + "-XX-XX"
	case len(birthDate) == 7 && isDigits(birthDate[:4], 4) &&
		birthDate[4] == '-' && isDigits(birthDate[5:], 2):
		return birthDate + "-XX"
	default:
		return birthDate
	}
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
