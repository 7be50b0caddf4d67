/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package status groups certificates per holder and aggregates them into
// immunity and mask verdicts. Grouping is structural; the verdicts come
// from the rule engine.
package status

import (
	"time"

	"github.com/dcckit/dcc/pkg/doc/dcc"
)

// CertValidationStatus is the lifecycle state of one stored certificate.
type CertValidationStatus string

const (
	// StatusValid certificates participate in grouping and aggregation.
	StatusValid CertValidationStatus = "VALID"
	// StatusExpiryPeriod certificates are close to envelope expiry but
	// still usable.
	StatusExpiryPeriod CertValidationStatus = "EXPIRY_PERIOD"
	// StatusExpired certificates are past envelope expiry.
	StatusExpired CertValidationStatus = "EXPIRED"
	// StatusInvalid certificates failed signature or rule validation.
	StatusInvalid CertValidationStatus = "INVALID"
)

// CombinedCertificate is a stored certificate together with its QR transport
// form and validation state.
type CombinedCertificate struct {
	Certificate *dcc.Certificate
	QRContent   string
	Status      CertValidationStatus
	// AddedAt orders certificates by storage time.
	AddedAt time.Time
}

// IsUsable reports whether the certificate may contribute to grouping
// verdicts.
func (c *CombinedCertificate) IsUsable() bool {
	return c.Status == StatusValid || c.Status == StatusExpiryPeriod
}

func (c *CombinedCertificate) vaccination() *dcc.Vaccination {
	return c.Certificate.Vaccination()
}

func (c *CombinedCertificate) test() *dcc.Test {
	return c.Certificate.Test()
}

func (c *CombinedCertificate) recovery() *dcc.Recovery {
	return c.Certificate.Recovery()
}
