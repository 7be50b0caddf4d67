/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package rules holds the business-rule model and the engine that evaluates
// rule sets against decoded health certificates. Rule content is external
// data fetched from a distribution backend; the engine only fixes the
// grammar (CertLogic) and the selection semantics.
package rules

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Type tags a rule with its role in validation. The domestic immunity-status
// categories sit alongside the EU acceptance/invalidation pair.
type Type string

const (
	TypeAcceptance   Type = "ACCEPTANCE"
	TypeInvalidation Type = "INVALIDATION"
	TypeImmunityB2   Type = "IMPFSTATUSBZWEI"
	TypeImmunityC2   Type = "IMPFSTATUSCZWEI"
	TypeImmunityE2   Type = "IMPFSTATUSEZWEI"
	TypeImmunityE1   Type = "IMPFSTATUSEONE"
	TypeMask         Type = "MASK"
	TypeBooster      Type = "BOOSTERNOTIFICATION"
)

// UnmarshalJSON uppercases the wire value, which distribution backends emit
// in mixed case ("Acceptance", "Invalidation").
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*t = Type(strings.ToUpper(s))

	return nil
}

// CertificateType restricts a rule to one entry kind. General rules apply
// to every certificate.
type CertificateType string

const (
	CertTypeGeneral     CertificateType = "GENERAL"
	CertTypeVaccination CertificateType = "VACCINATION"
	CertTypeTest        CertificateType = "TEST"
	CertTypeRecovery    CertificateType = "RECOVERY"
)

// Matches reports whether a rule scoped to t applies to a certificate of
// type ct.
func (t CertificateType) Matches(ct CertificateType) bool {
	return t == CertTypeGeneral || t == ct
}

// UnmarshalJSON uppercases the wire value ("General", "Vaccination").
func (t *CertificateType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*t = CertificateType(strings.ToUpper(s))

	return nil
}

// Rule is one immutable business rule. Superseded rules are replaced by
// version comparison, never mutated.
type Rule struct {
	Identifier      string          `json:"Identifier"`
	Type            Type            `json:"Type"`
	Version         string          `json:"Version"`
	SchemaVersion   string          `json:"SchemaVersion"`
	Engine          string          `json:"Engine"`
	EngineVersion   string          `json:"EngineVersion"`
	CertificateType CertificateType `json:"CertificateType"`
	Descriptions    []Description   `json:"Description"`
	ValidFrom       time.Time       `json:"ValidFrom"`
	ValidTo         time.Time       `json:"ValidTo"`
	AffectedFields  []string        `json:"AffectedFields"`
	Logic           json.RawMessage `json:"Logic"`
	Country         string          `json:"Country"`
	Region          string          `json:"Region,omitempty"`

	// Hash of the raw rule document as reported by the distribution index.
	Hash string `json:"-"`
}

// Description is a localized rule description.
type Description struct {
	Lang string `json:"lang"`
	Desc string `json:"desc"`
}

// DescriptionFor returns the description in the requested language, falling
// back to English, then to empty.
func (r *Rule) DescriptionFor(lang string) string {
	var english string

	for _, d := range r.Descriptions {
		switch strings.ToLower(d.Lang) {
		case strings.ToLower(lang):
			if d.Desc != "" {
				return d.Desc
			}
		case "en":
			english = d.Desc
		}
	}

	return english
}

// IsValidAt reports whether the rule's own validity window contains t.
func (r *Rule) IsValidAt(t time.Time) bool {
	return !t.Before(r.ValidFrom) && !t.After(r.ValidTo)
}

// Version is a numeric major.minor.patch triple. String versions compare
// numerically per part, so "1.10.0" is newer than "1.9.9".
type version [3]int

func parseVersion(s string) (version, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return version{}, false
	}

	var v version

	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return version{}, false
		}

		v[i] = n
	}

	return v, true
}

// compare returns -1, 0 or 1 ordering v against o.
func (v version) compare(o version) int {
	for i := 0; i < 3; i++ {
		if v[i] != o[i] {
			if v[i] < o[i] {
				return -1
			}

			return 1
		}
	}

	return 0
}

// CompareVersions orders two version strings numerically. Unparsable
// versions sort lowest.
func CompareVersions(a, b string) int {
	av, aok := parseVersion(a)
	bv, bok := parseVersion(b)

	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	default:
		return av.compare(bv)
	}
}
