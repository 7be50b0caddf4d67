/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package schema validates fetched rule documents against the rule JSON
// Schema before they are admitted to the corpus. Malformed rule content
// from the distribution backend must never reach the engine.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed rule_schema.json
var ruleSchemaJSON string

var ruleSchema = gojsonschema.NewStringLoader(ruleSchemaJSON)

// ErrInvalidRule is returned when a rule document does not conform to the
// rule schema. The wrapped message lists the violations.
var ErrInvalidRule = errors.New("rule document does not match schema")

// ValidateRule checks one raw rule document against the rule schema.
func ValidateRule(doc []byte) error {
	result, err := gojsonschema.Validate(ruleSchema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate rule document: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(violations, "; "))
}
