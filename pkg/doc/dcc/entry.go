/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dcc

import "time"

// Test type and result codes from the EU value sets.
const (
	PCRTestCode     = "LP6464-4"
	AntigenTestCode = "LP217198-3"

	PositiveResultCode = "260373001"
	NegativeResultCode = "260415000"
)

// Vaccine product codes from the EU medicinal-product value set.
const (
	ProductComirnaty = "EU/1/20/1528"
	ProductSpikevax  = "EU/1/20/1507"
	ProductVaxzevria = "EU/1/21/1529"
	ProductJanssen   = "EU/1/20/1525"
)

// Products whose single-dose series counts as vaccination after recovery
// rather than a genuinely single-dose product.
var twoDoseProducts = map[string]struct{}{
	ProductComirnaty: {},
	ProductSpikevax:  {},
	ProductVaxzevria: {},
}

// FullProtectionDelayDays is the number of days after the final dose of a
// complete series before full protection is assumed. Jurisdiction policy
// value.
const FullProtectionDelayDays = 14

// EntryType classifies a certificate entry.
type EntryType string

const (
	VaccinationIncomplete     EntryType = "VACCINATION_INCOMPLETE"
	VaccinationComplete       EntryType = "VACCINATION_COMPLETE"
	VaccinationFullProtection EntryType = "VACCINATION_FULL_PROTECTION"

	PositivePCRTest     EntryType = "POSITIVE_PCR_TEST"
	NegativePCRTest     EntryType = "NEGATIVE_PCR_TEST"
	PositiveAntigenTest EntryType = "POSITIVE_ANTIGEN_TEST"
	NegativeAntigenTest EntryType = "NEGATIVE_ANTIGEN_TEST"

	RecoveryEntry EntryType = "RECOVERY"
)

// Entry is one of Vaccination, Test or Recovery. The interface is sealed:
// only the three entry kinds in this package implement it.
type Entry interface {
	// ID is the unique certificate identifier (UVCI).
	ID() string
	// Type is the derived classification, computed from the entry fields.
	Type() EntryType

	isEntry()
}

// Vaccination is a vaccination entry of the certificate.
type Vaccination struct {
	TargetDisease string `cbor:"tg" json:"tg"`
	VaccineCode   string `cbor:"vp" json:"vp"`
	Product       string `cbor:"mp" json:"mp"`
	Manufacturer  string `cbor:"ma" json:"ma"`
	DoseNumber    int    `cbor:"dn" json:"dn"`
	TotalDoses    int    `cbor:"sd" json:"sd"`
	Occurrence    Date   `cbor:"dt" json:"dt"`
	Country       string `cbor:"co" json:"co"`
	Issuer        string `cbor:"is" json:"is"`
	UVCI          string `cbor:"ci" json:"ci"`
}

func (v Vaccination) ID() string { return v.UVCI }

func (Vaccination) isEntry() {}

// IsComplete reports whether the vaccination series is finished.
func (v Vaccination) IsComplete() bool {
	return v.DoseNumber >= v.TotalDoses
}

// IsBooster reports whether this dose was given on top of a finished
// series. Any complete entry beyond the plain 1/1 and 2/2 series counts.
func (v Vaccination) IsBooster() bool {
	return v.IsComplete() &&
		!(v.DoseNumber == 1 && v.TotalDoses == 1) &&
		!(v.DoseNumber == 2 && v.TotalDoses == 2)
}

// IsCompleteAfterRecovery reports whether this is a single-dose series of a
// product that normally requires two doses, which issuers use for
// vaccination after recovery.
func (v Vaccination) IsCompleteAfterRecovery() bool {
	if v.DoseNumber != 1 || v.TotalDoses != 1 {
		return false
	}

	_, ok := twoDoseProducts[v.Product]

	return ok
}

// HasFullProtection reports whether the entry grants full protection at the
// given point in time: a completed series older than the protection delay,
// a booster dose, or a single dose after recovery.
func (v Vaccination) HasFullProtection(now time.Time) bool {
	if v.IsBooster() || v.IsCompleteAfterRecovery() {
		return true
	}

	if !v.IsComplete() || v.Occurrence.IsZero() {
		return false
	}

	return v.Occurrence.AddDate(0, 0, FullProtectionDelayDays).Before(now)
}

// Type classifies the vaccination relative to the current wall clock.
func (v Vaccination) Type() EntryType {
	return v.TypeAt(time.Now())
}

// TypeAt classifies the vaccination relative to the given point in time.
func (v Vaccination) TypeAt(now time.Time) EntryType {
	switch {
	case v.HasFullProtection(now):
		return VaccinationFullProtection
	case v.IsComplete():
		return VaccinationComplete
	default:
		return VaccinationIncomplete
	}
}

// Test is a test entry of the certificate.
type Test struct {
	TargetDisease    string   `cbor:"tg" json:"tg"`
	TestType         string   `cbor:"tt" json:"tt"`
	TestName         string   `cbor:"nm,omitempty" json:"nm,omitempty"`
	Manufacturer     string   `cbor:"ma,omitempty" json:"ma,omitempty"`
	SampleCollection DateTime `cbor:"sc" json:"sc"`
	TestResult       string   `cbor:"tr" json:"tr"`
	TestingCentre    string   `cbor:"tc" json:"tc"`
	Country          string   `cbor:"co" json:"co"`
	Issuer           string   `cbor:"is" json:"is"`
	UVCI             string   `cbor:"ci" json:"ci"`
}

func (t Test) ID() string { return t.UVCI }

func (Test) isEntry() {}

// IsPositive reports whether the test result is positive. Unknown result
// codes are handled as positive.
func (t Test) IsPositive() bool {
	return t.TestResult != NegativeResultCode
}

// Type classifies the test entry. Unknown test types are handled as PCR.
func (t Test) Type() EntryType {
	negative := t.TestResult == NegativeResultCode

	if t.TestType == AntigenTestCode {
		if negative {
			return NegativeAntigenTest
		}

		return PositiveAntigenTest
	}

	if negative {
		return NegativePCRTest
	}

	return PositivePCRTest
}

// Recovery is a recovery entry of the certificate.
type Recovery struct {
	TargetDisease string `cbor:"tg" json:"tg"`
	FirstResult   Date   `cbor:"fr" json:"fr"`
	Country       string `cbor:"co" json:"co"`
	Issuer        string `cbor:"is" json:"is"`
	ValidFrom     Date   `cbor:"df" json:"df"`
	ValidUntil    Date   `cbor:"du" json:"du"`
	UVCI          string `cbor:"ci" json:"ci"`
}

func (r Recovery) ID() string { return r.UVCI }

func (Recovery) isEntry() {}

func (Recovery) Type() EntryType { return RecoveryEntry }

// IsValidAt reports whether the recovery validity window contains t.
func (r Recovery) IsValidAt(t time.Time) bool {
	if !r.ValidFrom.IsZero() && t.Before(r.ValidFrom.Time) {
		return false
	}

	return !r.ValidUntil.IsZero() && !r.ValidUntil.Time.AddDate(0, 0, 1).Before(t)
}
