/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package status

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/dcckit/dcc/pkg/doc/dcc"
)

// Jurisdiction policy values for the main-certificate selection.
const (
	// PCRValidityHours is how long a negative PCR test counts as current.
	PCRValidityHours = 48
	// AntigenValidityHours is how long a negative antigen test counts as
	// current.
	AntigenValidityHours = 24
	// MaxMergedVaccinations bounds the vaccination entries of the merged
	// certificate used for the immunity check.
	MaxMergedVaccinations = 10
)

var (
	// ErrCertAlreadyExists is returned when a certificate with the same
	// entry identifier is already stored in any group.
	ErrCertAlreadyExists = errors.New("certificate already exists")

	// ErrPositiveTest is returned when a positive PCR or antigen test is
	// added. Positive tests are never stored.
	ErrPositiveTest = errors.New("positive test certificates are not accepted")
)

// BoosterResult is the outcome of the booster rule check.
type BoosterResult string

const (
	BoosterPassed BoosterResult = "PASSED"
	BoosterFailed BoosterResult = "FAILED"
)

// BoosterNotification tells the holder a booster dose is advised, with the
// rule that triggered it.
type BoosterNotification struct {
	Result        BoosterResult
	RuleID        string
	DescriptionEN string
	DescriptionDE string
}

// GroupedCertificates holds all certificates of one person plus the
// aggregated verdicts computed over them.
type GroupedCertificates struct {
	ID           string
	Certificates []*CombinedCertificate

	Immunity ImmunityResult
	Mask     MaskResult
	Booster  BoosterNotification
}

// GroupedList is the per-holder grouped certificate collection.
type GroupedList struct {
	Groups []*GroupedCertificates
}

// Add stores a certificate in the group of its holder, creating the group
// when the holder is new, and returns the group id. A certificate whose
// entry id is already present anywhere fails with ErrCertAlreadyExists; a
// positive test fails with ErrPositiveTest.
func (l *GroupedList) Add(cert *CombinedCertificate) (string, error) {
	entry := cert.Certificate.Entry()

	if test, ok := entry.(dcc.Test); ok && test.IsPositive() {
		return "", ErrPositiveTest
	}

	for _, group := range l.Groups {
		for _, existing := range group.Certificates {
			if existing.Certificate.Entry().ID() == entry.ID() {
				return "", ErrCertAlreadyExists
			}
		}
	}

	for _, group := range l.Groups {
		if SameHolder(group.Certificates[0].Certificate, cert.Certificate) {
			group.Certificates = append(group.Certificates, cert)

			return group.ID, nil
		}
	}

	group := &GroupedCertificates{
		ID:           uuid.NewString(),
		Certificates: []*CombinedCertificate{cert},
	}
	l.Groups = append(l.Groups, group)

	return group.ID, nil
}

// FindGroup returns the group with the given id, or nil.
func (l *GroupedList) FindGroup(id string) *GroupedCertificates {
	for _, g := range l.Groups {
		if g.ID == id {
			return g
		}
	}

	return nil
}

// mainCertRule is one row of the main-certificate priority table.
type mainCertRule struct {
	name    string
	matches func(c *CombinedCertificate, now time.Time) bool
}

// The priority table for the representative certificate of a group. Rows
// are evaluated in order against the sorted certificate list; the first
// match wins.
var mainCertPriority = []mainCertRule{
	{
		name: "current negative PCR test",
		matches: func(c *CombinedCertificate, now time.Time) bool {
			t := c.test()
			return t != nil && t.Type() == dcc.NegativePCRTest &&
				!t.SampleCollection.IsZero() &&
				!t.SampleCollection.Add(PCRValidityHours*time.Hour).Before(now)
		},
	},
	{
		name: "current negative antigen test",
		matches: func(c *CombinedCertificate, now time.Time) bool {
			t := c.test()
			return t != nil && t.Type() == dcc.NegativeAntigenTest &&
				!t.SampleCollection.IsZero() &&
				!t.SampleCollection.Add(AntigenValidityHours*time.Hour).Before(now)
		},
	},
	{
		name: "vaccination with full protection",
		matches: func(c *CombinedCertificate, now time.Time) bool {
			v := c.vaccination()
			return v != nil && v.TypeAt(now) == dcc.VaccinationFullProtection
		},
	},
	{
		name: "recovery within validity window",
		matches: func(c *CombinedCertificate, now time.Time) bool {
			r := c.recovery()
			return r != nil && r.IsValidAt(now)
		},
	},
	{
		name: "complete vaccination",
		matches: func(c *CombinedCertificate, now time.Time) bool {
			v := c.vaccination()
			return v != nil && v.TypeAt(now) == dcc.VaccinationComplete
		},
	},
	{
		name: "incomplete vaccination",
		matches: func(c *CombinedCertificate, now time.Time) bool {
			v := c.vaccination()
			return v != nil && v.TypeAt(now) == dcc.VaccinationIncomplete
		},
	},
	{
		name: "any recovery",
		matches: func(c *CombinedCertificate, _ time.Time) bool {
			return c.recovery() != nil
		},
	},
}

// MainCertificate picks the representative certificate of the group by the
// fixed priority table; the first certificate is the fallback when no row
// matches.
func (g *GroupedCertificates) MainCertificate(now time.Time) *CombinedCertificate {
	if len(g.Certificates) == 0 {
		return nil
	}

	candidates := g.sortedByRelevance()

	for _, rule := range mainCertPriority {
		for _, c := range candidates {
			if c.IsUsable() && rule.matches(c, now) {
				return c
			}
		}
	}

	return g.Certificates[0]
}

// sortedByRelevance orders the group for selection: vaccinations by
// occurrence descending, then recoveries by first result descending, then
// tests by sample collection descending.
func (g *GroupedCertificates) sortedByRelevance() []*CombinedCertificate {
	vaccinations := lo.Filter(g.Certificates, func(c *CombinedCertificate, _ int) bool {
		return c.vaccination() != nil
	})
	sort.SliceStable(vaccinations, func(i, j int) bool {
		return vaccinations[j].vaccination().Occurrence.Before(vaccinations[i].vaccination().Occurrence.Time)
	})

	recoveries := lo.Filter(g.Certificates, func(c *CombinedCertificate, _ int) bool {
		return c.recovery() != nil
	})
	sort.SliceStable(recoveries, func(i, j int) bool {
		return recoveries[j].recovery().FirstResult.Before(recoveries[i].recovery().FirstResult.Time)
	})

	tests := lo.Filter(g.Certificates, func(c *CombinedCertificate, _ int) bool {
		return c.test() != nil
	})
	sort.SliceStable(tests, func(i, j int) bool {
		return tests[j].test().SampleCollection.Before(tests[i].test().SampleCollection.Time)
	})

	out := make([]*CombinedCertificate, 0, len(g.Certificates))
	out = append(out, vaccinations...)
	out = append(out, recoveries...)
	out = append(out, tests...)

	return out
}

// LatestValidVaccinations returns the usable vaccination certificates,
// newest occurrence first.
func (g *GroupedCertificates) LatestValidVaccinations() []*CombinedCertificate {
	vaccinations := lo.Filter(g.Certificates, func(c *CombinedCertificate, _ int) bool {
		return c.IsUsable() && c.vaccination() != nil
	})
	sort.SliceStable(vaccinations, func(i, j int) bool {
		return vaccinations[j].vaccination().Occurrence.Before(vaccinations[i].vaccination().Occurrence.Time)
	})

	return vaccinations
}

// LatestValidRecovery returns the usable recovery certificate with the most
// recent first result, or nil.
func (g *GroupedCertificates) LatestValidRecovery() *CombinedCertificate {
	recoveries := lo.Filter(g.Certificates, func(c *CombinedCertificate, _ int) bool {
		return c.IsUsable() && c.recovery() != nil
	})
	sort.SliceStable(recoveries, func(i, j int) bool {
		return recoveries[j].recovery().FirstResult.Before(recoveries[i].recovery().FirstResult.Time)
	})

	if len(recoveries) == 0 {
		return nil
	}

	return recoveries[0]
}

// LatestValidTest returns the usable test certificate with the most recent
// sample collection, or nil.
func (g *GroupedCertificates) LatestValidTest() *CombinedCertificate {
	tests := lo.Filter(g.Certificates, func(c *CombinedCertificate, _ int) bool {
		return c.IsUsable() && c.test() != nil
	})
	sort.SliceStable(tests, func(i, j int) bool {
		return tests[j].test().SampleCollection.Before(tests[i].test().SampleCollection.Time)
	})

	if len(tests) == 0 {
		return nil
	}

	return tests[0]
}

// MergedCertificate builds the synthetic certificate the aggregator
// evaluates: the most recent usable vaccinations (bounded), the latest
// usable recovery and the latest usable test, each list sorted descending.
// Nil when the group holds nothing usable.
func (g *GroupedCertificates) MergedCertificate() *CombinedCertificate {
	vaccinations := g.LatestValidVaccinations()
	if len(vaccinations) > MaxMergedVaccinations {
		vaccinations = vaccinations[:MaxMergedVaccinations]
	}

	recovery := g.LatestValidRecovery()
	test := g.LatestValidTest()

	sources := make([]*CombinedCertificate, 0, len(vaccinations)+2)
	sources = append(sources, vaccinations...)

	if recovery != nil {
		sources = append(sources, recovery)
	}

	if test != nil {
		sources = append(sources, test)
	}

	if len(sources) == 0 {
		return nil
	}

	if len(sources) == 1 {
		return sources[0]
	}

	base := *sources[0]
	cert := *base.Certificate

	cert.Vaccinations = lo.Map(vaccinations, func(c *CombinedCertificate, _ int) dcc.Vaccination {
		return *c.vaccination()
	})

	cert.Tests = nil
	if test != nil {
		cert.Tests = []dcc.Test{*test.test()}
	}

	cert.Recoveries = nil
	if recovery != nil {
		cert.Recoveries = []dcc.Recovery{*recovery.recovery()}
	}

	base.Certificate = &cert

	return &base
}
