/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verification exposes the certificate verification pipeline over
// REST: transport decode, trust-chain validation and business-rule
// evaluation in one call.
package verification

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/internal/logfields"
	"github.com/dcckit/dcc/pkg/doc/dcc"
	"github.com/dcckit/dcc/pkg/restapi/resterr"
	"github.com/dcckit/dcc/pkg/restapi/v1/util"
	"github.com/dcckit/dcc/pkg/rules"
	"github.com/dcckit/dcc/pkg/verifier"
)

const (
	ruleEngineComponent = "rules.Engine"

	defaultCountry  = "de"
	defaultLanguage = "en"
)

var logger = log.New("verification-api")

// Verification outcome for the whole certificate.
const (
	StatusValid            = "VALID"
	StatusRulesFailed      = "RULES_FAILED"
	StatusRulesOpen        = "RULES_OPEN"
	StatusExpired          = "EXPIRED"
	StatusSignatureInvalid = "SIGNATURE_INVALID"
	StatusUsageMismatch    = "USAGE_MISMATCH"
)

type verifyService interface {
	DecodeQR(qr string) (*dcc.Certificate, error)
}

type ruleEngine interface {
	Evaluate(schemaVersion string, rules []rules.Rule, external rules.ExternalParameters,
		payload []byte) ([]rules.ValidationResult, error)
}

type valueSetProvider interface {
	AsMap() map[string][]string
}

// Config configures the verification Controller.
type Config struct {
	VerifySvc verifyService
	Engine    ruleEngine
	RuleStore *rules.Store
	ValueSets valueSetProvider
	// Country is the acceptance country for rule selection. Defaults to "de".
	Country string
	// Language selects rule descriptions in responses. Defaults to "en".
	Language string
	// Now is the validation clock. Defaults to time.Now.
	Now func() time.Time
}

// Controller for the verification API.
type Controller struct {
	verifySvc verifyService
	engine    ruleEngine
	ruleStore *rules.Store
	valueSets valueSetProvider
	country   string
	language  string
	now       func() time.Time
}

// NewController creates a verification controller.
func NewController(config *Config) *Controller {
	country := config.Country
	if country == "" {
		country = defaultCountry
	}

	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		verifySvc: config.VerifySvc,
		engine:    config.Engine,
		ruleStore: config.RuleStore,
		valueSets: config.ValueSets,
		country:   country,
		language:  language,
		now:       now,
	}
}

// VerifyCertificateData is the request body for a verification.
type VerifyCertificateData struct {
	QR     string `json:"qr"`
	Region string `json:"region,omitempty"`
}

// RuleOutcome reports one business rule's evaluation.
type RuleOutcome struct {
	Identifier  string `json:"identifier"`
	Type        string `json:"type"`
	Result      string `json:"result"`
	Description string `json:"description,omitempty"`
	Current     string `json:"current,omitempty"`
}

// VerifyCertificateResponse is the verdict document for one QR payload.
type VerifyCertificateResponse struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Holder        string        `json:"holder,omitempty"`
	BirthDate     string        `json:"birthDate,omitempty"`
	EntryType     string        `json:"entryType,omitempty"`
	CertificateID string        `json:"certificateId,omitempty"`
	Issuer        string        `json:"issuer,omitempty"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	Rules         []RuleOutcome `json:"rules,omitempty"`
}

// PostVerification verifies a QR payload.
// POST /v1/verifications.
func (c *Controller) PostVerification(ctx echo.Context) error {
	logger.Debug("PostVerification begin")

	var body VerifyCertificateData

	if err := util.ReadBody(ctx, &body); err != nil {
		return err
	}

	return util.WriteOutput(ctx)(c.verify(&body))
}

func (c *Controller) verify(body *VerifyCertificateData) (*VerifyCertificateResponse, error) {
	if strings.TrimSpace(body.QR) == "" {
		return nil, resterr.NewValidationError(resterr.InvalidValue, "qr",
			errors.New("qr payload required"))
	}

	id := uuid.NewString()

	cert, err := c.verifySvc.DecodeQR(body.QR)
	if err != nil {
		status, terminal := failureStatus(err)
		if !terminal {
			return nil, resterr.NewValidationError(resterr.InvalidValue, "qr", err)
		}

		logger.Debug("Certificate rejected", logfields.WithVerificationID(id),
			log.WithError(err))

		return &VerifyCertificateResponse{ID: id, Status: status, Reason: err.Error()}, nil
	}

	expiresAt := cert.ValidUntil

	resp := &VerifyCertificateResponse{
		ID:        id,
		Status:    StatusValid,
		Holder:    cert.Name.Full(),
		BirthDate: cert.FormattedBirthDate(),
		Issuer:    cert.Issuer,
		ExpiresAt: &expiresAt,
	}

	if entry := cert.Entry(); entry != nil {
		resp.EntryType = string(entry.Type())
		resp.CertificateID = entry.ID()
	}

	outcomes, ruleStatus, err := c.applyRules(cert, body.Region)
	if err != nil {
		return nil, err
	}

	resp.Rules = outcomes

	if ruleStatus != "" {
		resp.Status = ruleStatus
	}

	logger.Debug("PostVerification success", logfields.WithVerificationID(id),
		logfields.WithCertificateID(resp.CertificateID), logfields.WithRuleCount(len(outcomes)))

	return resp, nil
}

// failureStatus maps a terminal verification failure onto the verdict
// status. Anything else is a malformed payload the caller must fix.
func failureStatus(err error) (string, bool) {
	switch {
	case errors.Is(err, verifier.ErrExpired):
		return StatusExpired, true
	case errors.Is(err, verifier.ErrBadSignature):
		return StatusSignatureInvalid, true
	case errors.Is(err, verifier.ErrOidMismatch):
		return StatusUsageMismatch, true
	default:
		return "", false
	}
}

// applyRules evaluates the acceptance-flow rules and derives the aggregate
// rule status: RULES_FAILED on any failed rule, RULES_OPEN when rules could
// not be decided but none failed, empty otherwise. Invalidation-rule
// outcomes are reported but never decide the aggregate.
func (c *Controller) applyRules(cert *dcc.Certificate, region string) ([]RuleOutcome, string, error) {
	now := c.now()

	selected, err := rules.SelectRules(c.ruleStore, rules.Query{
		AcceptanceCountry: c.country,
		IssuerCountry:     strings.ToLower(cert.Issuer),
		CertificateType:   rules.CertificateTypeOf(cert),
		ValidationClock:   now,
		ValidationType:    rules.ValidationRules,
		Region:            region,
	})
	if err != nil {
		return nil, "", resterr.NewSystemError(ruleEngineComponent, "SelectRules", err)
	}

	if len(selected) == 0 {
		return nil, "", nil
	}

	payload, err := json.Marshal(cert)
	if err != nil {
		return nil, "", resterr.NewSystemError(ruleEngineComponent, "Marshal", err)
	}

	results, err := c.engine.Evaluate(cert.Version, selected, rules.ExternalParameters{
		ValidationClock:   now,
		ValueSets:         c.valueSets.AsMap(),
		CountryCode:       c.country,
		Exp:               cert.ValidUntil,
		Iat:               cert.ValidFrom,
		IssuerCountryCode: cert.Issuer,
		Region:            region,
	}, payload)
	if err != nil {
		return nil, "", resterr.NewSystemError(ruleEngineComponent, "Evaluate", err)
	}

	outcomes := make([]RuleOutcome, 0, len(results))

	var failed, open bool

	for _, r := range results {
		if r.Rule.Type != rules.TypeInvalidation {
			switch r.Result {
			case rules.ResultFail:
				failed = true
			case rules.ResultOpen:
				open = true
			}
		}

		outcomes = append(outcomes, RuleOutcome{
			Identifier:  r.Rule.Identifier,
			Type:        string(r.Rule.Type),
			Result:      string(r.Result),
			Description: r.Rule.DescriptionFor(c.language),
			Current:     r.Current,
		})
	}

	switch {
	case failed:
		return outcomes, StatusRulesFailed, nil
	case open:
		return outcomes, StatusRulesOpen, nil
	default:
		return outcomes, "", nil
	}
}
