/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dcckit/dcc/pkg/doc/dcc"
)

// ValidationType names the validation flow a caller is running. Each flow
// maps to the rule types it needs.
type ValidationType string

const (
	ValidationRules        ValidationType = "RULES"
	ValidationImmunityB2   ValidationType = "IMMUNITY_STATUS_B2"
	ValidationImmunityC2   ValidationType = "IMMUNITY_STATUS_C2"
	ValidationImmunityE2   ValidationType = "IMMUNITY_STATUS_E2"
	ValidationImmunityE1   ValidationType = "IMMUNITY_STATUS_E1"
	ValidationMask         ValidationType = "MASK"
	ValidationInvalidation ValidationType = "INVALIDATION"
	ValidationBooster      ValidationType = "BOOSTER"
)

// Query scopes a rule selection.
type Query struct {
	// AcceptanceCountry is the country whose entry rules are applied.
	AcceptanceCountry string
	// IssuerCountry scopes invalidation rules to the certificate's issuer.
	IssuerCountry   string
	CertificateType CertificateType
	ValidationClock time.Time
	ValidationType  ValidationType
	Region          string
}

// CertificateTypeOf maps a certificate's entry onto the selection
// certificate type.
func CertificateTypeOf(cert *dcc.Certificate) CertificateType {
	switch cert.Entry().(type) {
	case dcc.Vaccination:
		return CertTypeVaccination
	case dcc.Test:
		return CertTypeTest
	default:
		return CertTypeRecovery
	}
}

// SelectRules picks the applicable rule set from the store for one
// validation. Among rules sharing an identifier only the highest version
// survives; region matching is trimmed and case-insensitive. For the RULES
// flow the result is the acceptance set followed by the invalidation set.
// Selection is deterministic for a given corpus snapshot and query.
func SelectRules(store *Store, q Query) ([]Rule, error) {
	switch q.ValidationType {
	case ValidationRules:
		acceptance := highestVersions(regionMatched(
			store.RulesBy(q.AcceptanceCountry, q.ValidationClock, TypeAcceptance, q.CertificateType),
			q.Region,
		))

		return append(acceptance, invalidationRules(store, q)...), nil
	case ValidationInvalidation:
		return invalidationRules(store, q), nil
	case ValidationImmunityB2, ValidationImmunityC2, ValidationImmunityE2, ValidationImmunityE1,
		ValidationMask, ValidationBooster:
		ruleType, err := q.ValidationType.ruleType()
		if err != nil {
			return nil, err
		}

		return highestVersions(regionMatched(
			store.RulesBy(q.AcceptanceCountry, q.ValidationClock, ruleType, q.CertificateType),
			q.Region,
		)), nil
	default:
		return nil, fmt.Errorf("unknown validation type %q", q.ValidationType)
	}
}

func invalidationRules(store *Store, q Query) []Rule {
	if strings.TrimSpace(q.IssuerCountry) == "" {
		return nil
	}

	return highestVersions(
		store.RulesBy(q.IssuerCountry, q.ValidationClock, TypeInvalidation, q.CertificateType),
	)
}

func (t ValidationType) ruleType() (Type, error) {
	switch t {
	case ValidationImmunityB2:
		return TypeImmunityB2, nil
	case ValidationImmunityC2:
		return TypeImmunityC2, nil
	case ValidationImmunityE2:
		return TypeImmunityE2, nil
	case ValidationImmunityE1:
		return TypeImmunityE1, nil
	case ValidationMask:
		return TypeMask, nil
	case ValidationBooster:
		return TypeBooster, nil
	default:
		return "", fmt.Errorf("validation type %q has no single rule type", t)
	}
}

func regionMatched(rules []Rule, region string) []Rule {
	want := strings.TrimSpace(region)

	return lo.Filter(rules, func(r Rule, _ int) bool {
		return strings.EqualFold(strings.TrimSpace(r.Region), want)
	})
}

// highestVersions keeps, per identifier, the rule with the numerically
// highest version. Result order follows the first appearance of each
// identifier in the input, so selection stays deterministic.
func highestVersions(rules []Rule) []Rule {
	best := make(map[string]int, len(rules))

	var out []Rule

	for _, r := range rules {
		at, seen := best[r.Identifier]
		if !seen {
			best[r.Identifier] = len(out)
			out = append(out, r)

			continue
		}

		if CompareVersions(r.Version, out[at].Version) > 0 {
			out[at] = r
		}
	}

	return out
}
