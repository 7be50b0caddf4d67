/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package status

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/internal/logfields"
	"github.com/dcckit/dcc/pkg/rules"
)

var logger = log.New("status")

// FullImmunityRecoveryDays is the number of days after a recovery's first
// positive result until full immunity is assumed. Jurisdiction policy value.
const FullImmunityRecoveryDays = 29

// ImmunizationStatus is the aggregated immunity verdict for a group.
type ImmunizationStatus string

const (
	ImmunityFull    ImmunizationStatus = "FULL"
	ImmunityPartial ImmunizationStatus = "PARTIAL"
	ImmunityInvalid ImmunizationStatus = "INVALID"
)

// MaskStatus is the aggregated mask-requirement verdict for a group.
type MaskStatus string

const (
	MaskRequired    MaskStatus = "REQUIRED"
	MaskNotRequired MaskStatus = "NOT_REQUIRED"
	MaskNoRules     MaskStatus = "NO_RULES"
	MaskInvalid     MaskStatus = "INVALID"
)

// ImmunityResult is the immunity verdict with the description of the rule
// that decided it. FullImmunityFromRecovery is set only when the E1 tier
// decided and the recovery-based full-immunity date is still ahead.
type ImmunityResult struct {
	Status                   ImmunizationStatus
	Description              string
	FullImmunityFromRecovery string
}

// MaskResult is the mask verdict.
type MaskResult struct {
	Status MaskStatus
}

// The immunity tiers in evaluation order. The first tier whose rules all
// pass decides the status.
var immunityTiers = []struct {
	validationType rules.ValidationType
	status         ImmunizationStatus
}{
	{rules.ValidationImmunityB2, ImmunityFull},
	{rules.ValidationImmunityC2, ImmunityFull},
	{rules.ValidationImmunityE2, ImmunityFull},
	{rules.ValidationImmunityE1, ImmunityPartial},
}

type verdict int

const (
	verdictPassed verdict = iota
	verdictFailed
	verdictNoRules
)

// Config holds the dependencies of the aggregator.
type Config struct {
	Engine    *rules.Engine
	RuleStore *rules.Store
	ValueSets *rules.ValueSetStore
	// Country whose rules decide the verdicts. Defaults to "de".
	Country string
	// Language for rule descriptions. Defaults to "en".
	Language string
	Now      func() time.Time
}

// Aggregator computes the immunity and mask verdicts of certificate groups
// by evaluating the domestic rule tiers over merged certificates.
type Aggregator struct {
	engine    *rules.Engine
	ruleStore *rules.Store
	valueSets *rules.ValueSetStore
	country   string
	language  string
	now       func() time.Time
}

// New returns an aggregator.
func New(config *Config) *Aggregator {
	country := config.Country
	if country == "" {
		country = "de"
	}

	language := config.Language
	if language == "" {
		language = "en"
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		engine:    config.Engine,
		ruleStore: config.RuleStore,
		valueSets: config.ValueSets,
		country:   country,
		language:  language,
		now:       now,
	}
}

// Validate computes and stores the immunity and mask verdicts of one group.
// The acceptance/invalidation gate runs first: when it fails, the group is
// partially immune and masked, and no further tier is evaluated.
func (a *Aggregator) Validate(group *GroupedCertificates, region string) error {
	merged := group.MergedCertificate()
	if merged == nil {
		group.Immunity = ImmunityResult{Status: ImmunityInvalid}
		group.Mask = MaskResult{Status: MaskInvalid}

		return nil
	}

	gate, _, err := a.validateType(merged, rules.ValidationRules, region)
	if err != nil {
		return fmt.Errorf("validate group %s: %w", group.ID, err)
	}

	if gate == verdictFailed {
		group.Immunity = ImmunityResult{Status: ImmunityPartial}
		group.Mask = MaskResult{Status: MaskRequired}

		logger.Debug("acceptance gate failed", logfields.WithVerificationID(group.ID))

		return nil
	}

	maskVerdict, _, err := a.validateType(merged, rules.ValidationMask, region)
	if err != nil {
		return fmt.Errorf("validate group %s: %w", group.ID, err)
	}

	switch maskVerdict {
	case verdictPassed:
		group.Mask = MaskResult{Status: MaskNotRequired}
	case verdictFailed:
		group.Mask = MaskResult{Status: MaskRequired}
	case verdictNoRules:
		group.Mask = MaskResult{Status: MaskNoRules}
	}

	immunity, err := a.immunityStatus(merged)
	if err != nil {
		return fmt.Errorf("validate group %s: %w", group.ID, err)
	}

	group.Immunity = immunity

	return nil
}

// immunityStatus walks the tiers in order and returns the verdict of the
// first tier whose rules all pass. The E1 tier additionally carries the
// recovery-based full-immunity date when it is still ahead.
func (a *Aggregator) immunityStatus(merged *CombinedCertificate) (ImmunityResult, error) {
	for _, tier := range immunityTiers {
		v, results, err := a.validateType(merged, tier.validationType, "")
		if err != nil {
			return ImmunityResult{}, err
		}

		if v != verdictPassed {
			continue
		}

		result := ImmunityResult{
			Status:      tier.status,
			Description: results[0].Rule.DescriptionFor(a.language),
		}

		if tier.validationType == rules.ValidationImmunityE1 {
			result.FullImmunityFromRecovery = a.fullImmunityFromRecovery(merged)
		}

		return result, nil
	}

	return ImmunityResult{Status: ImmunityPartial}, nil
}

// fullImmunityFromRecovery computes recovery first result plus the policy
// delay, empty when the group has no recovery or the date already passed.
func (a *Aggregator) fullImmunityFromRecovery(merged *CombinedCertificate) string {
	recovery := merged.recovery()
	if recovery == nil || recovery.FirstResult.IsZero() {
		return ""
	}

	fullImmunity := recovery.FirstResult.AddDate(0, 0, FullImmunityRecoveryDays)
	if fullImmunity.Before(a.now()) {
		return ""
	}

	return fullImmunity.Format("2006-01-02")
}

// CheckBooster evaluates the booster notification rules against the latest
// usable vaccination certificate and stores the outcome on the group.
func (a *Aggregator) CheckBooster(group *GroupedCertificates) error {
	vaccinations := group.LatestValidVaccinations()
	if len(vaccinations) == 0 {
		group.Booster = BoosterNotification{Result: BoosterFailed}

		return nil
	}

	latest := vaccinations[0]

	_, results, err := a.validateType(latest, rules.ValidationBooster, "")
	if err != nil {
		return fmt.Errorf("booster check for group %s: %w", group.ID, err)
	}

	for _, r := range results {
		if r.Result != rules.ResultPassed {
			continue
		}

		group.Booster = BoosterNotification{
			Result:        BoosterPassed,
			RuleID:        r.Rule.Identifier,
			DescriptionEN: r.Rule.DescriptionFor("en"),
			DescriptionDE: r.Rule.DescriptionFor("de"),
		}

		return nil
	}

	group.Booster = BoosterNotification{Result: BoosterFailed}

	return nil
}

// validateType selects and evaluates the rules of one validation flow
// against a certificate. The verdict ignores invalidation-rule results,
// matching the acceptance-flow contract where invalidation outcomes are
// reported separately.
func (a *Aggregator) validateType(
	cert *CombinedCertificate,
	validationType rules.ValidationType,
	region string,
) (verdict, []rules.ValidationResult, error) {
	selected, err := rules.SelectRules(a.ruleStore, rules.Query{
		AcceptanceCountry: a.country,
		IssuerCountry:     strings.ToLower(cert.Certificate.Issuer),
		CertificateType:   rules.CertificateTypeOf(cert.Certificate),
		ValidationClock:   a.now(),
		ValidationType:    validationType,
		Region:            region,
	})
	if err != nil {
		return 0, nil, err
	}

	if len(selected) == 0 {
		return verdictNoRules, nil, nil
	}

	payload, err := json.Marshal(cert.Certificate)
	if err != nil {
		return 0, nil, fmt.Errorf("encode certificate payload: %w", err)
	}

	external := rules.ExternalParameters{
		ValidationClock:   a.now(),
		ValueSets:         a.valueSets.AsMap(),
		CountryCode:       a.country,
		Exp:               cert.Certificate.ValidUntil,
		Iat:               cert.Certificate.ValidFrom,
		IssuerCountryCode: strings.ToLower(cert.Certificate.Issuer),
	}

	results, err := a.engine.Evaluate(cert.Certificate.Version, selected, external, payload)
	if err != nil {
		return 0, nil, err
	}

	decisive := results[:0:0]
	for _, r := range results {
		if r.Rule.Type != rules.TypeInvalidation {
			decisive = append(decisive, r)
		}
	}

	if len(decisive) == 0 {
		return verdictNoRules, nil, nil
	}

	for _, r := range decisive {
		if r.Result != rules.ResultPassed {
			return verdictFailed, decisive, nil
		}
	}

	return verdictPassed, decisive, nil
}
