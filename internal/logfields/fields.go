/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logfields provides the structured log fields shared across the
// toolkit.
package logfields

import (
	"encoding/hex"

	"go.uber.org/zap"
)

// Log Fields.
const (
	FieldCountry        = "country"
	FieldKid            = "kid"
	FieldCertificateID  = "certificateID"
	FieldRuleID         = "ruleID"
	FieldRuleCount      = "ruleCount"
	FieldTrustListSize  = "trustListSize"
	FieldValidationType = "validationType"
	FieldVerificationID = "verificationID"
	FieldUserLogLevel   = "userLogLevel"
	FieldHostURL        = "hostURL"
)

// WithCountry sets the Country field.
func WithCountry(country string) zap.Field {
	return zap.String(FieldCountry, country)
}

// WithKid sets the Kid field, hex encoded.
func WithKid(kid []byte) zap.Field {
	return zap.String(FieldKid, hex.EncodeToString(kid))
}

// WithCertificateID sets the CertificateID field.
func WithCertificateID(id string) zap.Field {
	return zap.String(FieldCertificateID, id)
}

// WithRuleID sets the RuleID field.
func WithRuleID(id string) zap.Field {
	return zap.String(FieldRuleID, id)
}

// WithRuleCount sets the RuleCount field.
func WithRuleCount(count int) zap.Field {
	return zap.Int(FieldRuleCount, count)
}

// WithTrustListSize sets the TrustListSize field.
func WithTrustListSize(size int) zap.Field {
	return zap.Int(FieldTrustListSize, size)
}

// WithValidationType sets the ValidationType field.
func WithValidationType(validationType string) zap.Field {
	return zap.String(FieldValidationType, validationType)
}

// WithVerificationID sets the VerificationID field.
func WithVerificationID(id string) zap.Field {
	return zap.String(FieldVerificationID, id)
}

// WithUserLogLevel sets the UserLogLevel field.
func WithUserLogLevel(level string) zap.Field {
	return zap.String(FieldUserLogLevel, level)
}

// WithHostURL sets the HostURL field.
func WithHostURL(hostURL string) zap.Field {
	return zap.String(FieldHostURL, hostURL)
}
