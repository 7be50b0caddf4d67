/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package national carries the legacy fixed national rule set. It predates
// the CertLogic rule distribution and survives only for one legacy
// verification flow; new flows use the rule engine, where rule content is
// data. Each check has a stable identifier so callers can map a violation
// to user guidance.
package national

import (
	"fmt"
	"time"

	"github.com/dcckit/dcc/pkg/doc/dcc"
)

// Stable rule identifiers.
const (
	RuleVRDE001 = "VR_DE_001"
	RuleVRDE002 = "VR_DE_002"
	RuleVRDE003 = "VR_DE_003"
	RuleVRDE004 = "VR_DE_004"
	RuleTRDE001 = "TR_DE_001"
	RuleTRDE002 = "TR_DE_002"
	RuleTRDE003 = "TR_DE_003"
	RuleTRDE004 = "TR_DE_004"
	RuleRRDE001 = "RR_DE_001"
	RuleRRDE002 = "RR_DE_002"
)

// Fixed policy values of the legacy rule set.
const (
	vaccinationMinAgeDays = 14
	vaccinationMaxAgeDays = 365

	pcrTestMaxAgeHours     = 72
	antigenTestMaxAgeHours = 48

	recoveryMinAgeDays = 27
	recoveryMaxAgeDays = 180
)

var approvedProducts = map[string]struct{}{
	dcc.ProductComirnaty: {},
	dcc.ProductSpikevax:  {},
	dcc.ProductVaxzevria: {},
	dcc.ProductJanssen:   {},
}

// ViolationError reports which rule of the fixed set a certificate entry
// violates.
type ViolationError struct {
	RuleID string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("violation of validation rule %s", e.RuleID)
}

// Validate asserts the fixed national rule set against a certificate entry.
// The first violated rule is returned as a *ViolationError; nil means the
// entry passes the whole set.
func Validate(entry dcc.Entry, now time.Time) error {
	switch e := entry.(type) {
	case dcc.Vaccination:
		return validateVaccination(e, now)
	case dcc.Test:
		return validateTest(e, now)
	case dcc.Recovery:
		return validateRecovery(e, now)
	default:
		return fmt.Errorf("unknown entry type %T", entry)
	}
}

func validateVaccination(v dcc.Vaccination, now time.Time) error {
	if v.DoseNumber != v.TotalDoses {
		return &ViolationError{RuleID: RuleVRDE001}
	}

	if _, ok := approvedProducts[v.Product]; !ok {
		return &ViolationError{RuleID: RuleVRDE002}
	}

	if v.Occurrence.IsZero() || !olderThanDays(v.Occurrence.Time, now, vaccinationMinAgeDays) {
		return &ViolationError{RuleID: RuleVRDE003}
	}

	if olderThanDays(v.Occurrence.Time, now, vaccinationMaxAgeDays) {
		return &ViolationError{RuleID: RuleVRDE004}
	}

	return nil
}

func validateTest(t dcc.Test, now time.Time) error {
	if t.TestType != dcc.PCRTestCode && t.TestType != dcc.AntigenTestCode {
		return &ViolationError{RuleID: RuleTRDE001}
	}

	if t.TestType == dcc.AntigenTestCode &&
		(t.SampleCollection.IsZero() || olderThanHours(t.SampleCollection.Time, now, antigenTestMaxAgeHours)) {
		return &ViolationError{RuleID: RuleTRDE002}
	}

	if t.TestType == dcc.PCRTestCode &&
		(t.SampleCollection.IsZero() || olderThanHours(t.SampleCollection.Time, now, pcrTestMaxAgeHours)) {
		return &ViolationError{RuleID: RuleTRDE003}
	}

	if t.TestResult != dcc.NegativeResultCode {
		return &ViolationError{RuleID: RuleTRDE004}
	}

	return nil
}

func validateRecovery(r dcc.Recovery, now time.Time) error {
	if r.FirstResult.IsZero() || !olderThanDays(r.FirstResult.Time, now, recoveryMinAgeDays) {
		return &ViolationError{RuleID: RuleRRDE001}
	}

	if olderThanDays(r.FirstResult.Time, now, recoveryMaxAgeDays) {
		return &ViolationError{RuleID: RuleRRDE002}
	}

	return nil
}

func olderThanDays(t, now time.Time, days int) bool {
	return t.AddDate(0, 0, days).Before(now)
}

func olderThanHours(t, now time.Time, hours int) bool {
	return t.Add(time.Duration(hours) * time.Hour).Before(now)
}
