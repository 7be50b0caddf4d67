/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dcckit/dcc/pkg/rules/certlogic"
)

// Result is the outcome of one rule evaluation. OPEN means the rule could
// not be decided: either the rule is incompatible with this engine or its
// evaluation failed.
type Result string

const (
	ResultPassed Result = "PASSED"
	ResultFail   Result = "FAIL"
	ResultOpen   Result = "OPEN"
)

const (
	engineID = "CERTLOGIC"

	externalKey = "external"
	payloadKey  = "payload"
)

// Highest CertLogic specification version this interpreter implements.
var engineVersion = version{1, 0, 0}

// ValidationResult pairs a rule with its outcome. Current carries the
// affected payload fields for display; Errors is populated only for OPEN
// outcomes caused by evaluation failures.
type ValidationResult struct {
	Rule    Rule
	Result  Result
	Current string
	Errors  []error
}

// ExternalParameters is the context document made available to rules under
// the "external" key of the merged evaluation document.
type ExternalParameters struct {
	ValidationClock   time.Time           `json:"validationClock"`
	ValueSets         map[string][]string `json:"valueSets"`
	CountryCode       string              `json:"countryCode"`
	Exp               time.Time           `json:"exp"`
	Iat               time.Time           `json:"iat"`
	IssuerCountryCode string              `json:"issuerCountryCode"`
	Kid               string              `json:"kid"`
	Region            string              `json:"region"`
}

// Engine evaluates CertLogic rules against certificate payloads. It is
// stateless and safe for concurrent use.
type Engine struct{}

// NewEngine returns a rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs every rule against the merged document built from the
// external parameters and the certificate JSON payload. The result list
// preserves the input rule order; callers treat the first entry as the
// representative description. Evaluation is pure: the same inputs always
// produce the same results.
func (e *Engine) Evaluate(
	schemaVersion string,
	rules []Rule,
	external ExternalParameters,
	payload []byte,
) ([]ValidationResult, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	merged, err := mergeDocument(external, payload)
	if err != nil {
		return nil, fmt.Errorf("prepare evaluation document: %w", err)
	}

	var data interface{}
	if err := json.Unmarshal(merged, &data); err != nil {
		return nil, fmt.Errorf("decode evaluation document: %w", err)
	}

	certVersion, certVersionOK := parseVersion(schemaVersion)

	results := make([]ValidationResult, 0, len(rules))

	for _, rule := range rules {
		r := ValidationResult{
			Rule:    rule,
			Current: affectedFieldsData(rule, merged),
		}

		if !isCompatible(rule, certVersion, certVersionOK) {
			r.Result = ResultOpen
			results = append(results, r)

			continue
		}

		outcome, evalErr := evaluateRule(rule, data)
		if evalErr != nil {
			r.Result = ResultOpen
			r.Errors = append(r.Errors, evalErr)
		} else {
			r.Result = outcome
		}

		results = append(results, r)
	}

	return results, nil
}

func mergeDocument(external ExternalParameters, payload []byte) ([]byte, error) {
	externalJSON, err := json.Marshal(external)
	if err != nil {
		return nil, err
	}

	doc, err := sjson.SetRawBytes([]byte(`{}`), externalKey, externalJSON)
	if err != nil {
		return nil, err
	}

	return sjson.SetRawBytes(doc, payloadKey, payload)
}

// isCompatible implements the version gate: only CERTLOGIC rules whose
// engine version this interpreter covers and whose schema version matches
// the certificate's major version are decidable.
func isCompatible(rule Rule, certVersion version, certVersionOK bool) bool {
	if rule.Engine != engineID {
		return false
	}

	ruleEngineVersion, ok := parseVersion(rule.EngineVersion)
	if !ok || engineVersion.compare(ruleEngineVersion) < 0 {
		return false
	}

	ruleSchemaVersion, ok := parseVersion(rule.SchemaVersion)
	if !ok || !certVersionOK {
		return false
	}

	return certVersion[0] == ruleSchemaVersion[0] && certVersion.compare(ruleSchemaVersion) >= 0
}

// evaluateRule interprets the rule's logic tree. A panic inside the
// interpreter is contained and reported like any evaluation error.
func evaluateRule(rule Rule, data interface{}) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = fmt.Errorf("rule %s: evaluation panic: %v", rule.Identifier, r)
		}
	}()

	var logic interface{}
	if err := json.Unmarshal(rule.Logic, &logic); err != nil {
		return "", fmt.Errorf("rule %s: decode logic: %w", rule.Identifier, err)
	}

	value, err := certlogic.Evaluate(logic, data)
	if err != nil {
		return "", fmt.Errorf("rule %s: %w", rule.Identifier, err)
	}

	verdict, ok := value.(bool)
	if !ok {
		return "", fmt.Errorf("rule %s: logic evaluated to %T, want boolean", rule.Identifier, value)
	}

	if verdict {
		return ResultPassed, nil
	}

	return ResultFail, nil
}

// affectedFieldsData extracts the payload fields a rule declares as
// relevant, for result display.
func affectedFieldsData(rule Rule, merged []byte) string {
	var b strings.Builder

	for _, field := range rule.AffectedFields {
		value := gjson.GetBytes(merged, payloadKey+"."+field)
		if !value.Exists() {
			continue
		}

		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(value.String())
		b.WriteString("\n")
	}

	return b.String()
}
