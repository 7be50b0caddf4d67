/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package certlogic is an interpreter for the CertLogic expression
// language, the JSON-based rule format evaluated against health-certificate
// payloads. The grammar is fixed: a bounded operator set over JSON values,
// dates and value-set membership. Expressions and data are plain decoded
// JSON values (map[string]interface{}, []interface{}, string, float64,
// bool, nil).
package certlogic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Evaluate applies a CertLogic expression to a data document and returns
// the resulting value. Unknown operators and operand type mismatches yield
// an error, never a silent result.
func Evaluate(expr, data interface{}) (interface{}, error) {
	switch e := expr.(type) {
	case nil, bool, float64, string:
		return e, nil
	case int:
		return float64(e), nil
	case []interface{}:
		out := make([]interface{}, len(e))

		for i, item := range e {
			v, err := Evaluate(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = v
		}

		return out, nil
	case map[string]interface{}:
		if len(e) != 1 {
			return nil, fmt.Errorf("operation object must have exactly one key, got %d", len(e))
		}

		for op, args := range e {
			return apply(op, args, data)
		}
	}

	return nil, fmt.Errorf("unsupported expression type %T", expr)
}

// IsTruthy implements CertLogic truthiness: false, null, empty strings,
// zero and empty collections are falsy.
func IsTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

func apply(op string, args, data interface{}) (interface{}, error) {
	if op == "var" {
		return applyVar(args, data)
	}

	if op == "if" {
		return applyIf(args, data)
	}

	if op == "reduce" {
		return applyReduce(args, data)
	}

	operands, ok := args.([]interface{})
	if !ok {
		return nil, fmt.Errorf("operands of %q must be an array", op)
	}

	switch op {
	case "and":
		return applyAnd(operands, data)
	case "or":
		return applyOr(operands, data)
	case "!":
		return applyNot(operands, data)
	}

	// The remaining operators evaluate all operands eagerly.
	values, err := Evaluate(operands, data)
	if err != nil {
		return nil, err
	}

	evaluated := values.([]interface{})

	switch op {
	case "===":
		return applyStrictEquals(evaluated)
	case "in":
		return applyIn(evaluated)
	case "+":
		return applyPlus(evaluated)
	case "<", ">", "<=", ">=":
		return applyComparison(op, evaluated)
	case "after", "before", "not-after", "not-before":
		return applyDateComparison(op, evaluated)
	case "plusTime":
		return applyPlusTime(evaluated)
	case "extractFromUVCI":
		return applyExtractFromUVCI(evaluated)
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

func applyVar(args, data interface{}) (interface{}, error) {
	path, ok := args.(string)
	if !ok {
		// {"var": ["path"]} is accepted as an alias of {"var": "path"}.
		if arr, isArr := args.([]interface{}); isArr && len(arr) == 1 {
			if s, isStr := arr[0].(string); isStr {
				path = s
				ok = true
			}
		}
	}

	if !ok {
		return nil, fmt.Errorf("operand of var must be a string, got %T", args)
	}

	if path == "" {
		return data, nil
	}

	current := data

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			current = node[segment]
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, nil //nolint:nilnil // absent path is null, not an error
			}

			current = node[idx]
		default:
			return nil, nil //nolint:nilnil
		}
	}

	return current, nil
}

func applyIf(args, data interface{}) (interface{}, error) {
	operands, ok := args.([]interface{})
	if !ok || len(operands) < 2 || len(operands) > 3 {
		return nil, errors.New("if requires a guard, a then and an optional else")
	}

	guard, err := Evaluate(operands[0], data)
	if err != nil {
		return nil, err
	}

	if IsTruthy(guard) {
		return Evaluate(operands[1], data)
	}

	if len(operands) == 3 {
		return Evaluate(operands[2], data)
	}

	return nil, nil //nolint:nilnil
}

func applyAnd(operands []interface{}, data interface{}) (interface{}, error) {
	var last interface{} = true

	for _, operand := range operands {
		v, err := Evaluate(operand, data)
		if err != nil {
			return nil, err
		}

		if !IsTruthy(v) {
			return v, nil
		}

		last = v
	}

	return last, nil
}

func applyOr(operands []interface{}, data interface{}) (interface{}, error) {
	var last interface{} = false

	for _, operand := range operands {
		v, err := Evaluate(operand, data)
		if err != nil {
			return nil, err
		}

		if IsTruthy(v) {
			return v, nil
		}

		last = v
	}

	return last, nil
}

func applyNot(operands []interface{}, data interface{}) (interface{}, error) {
	if len(operands) != 1 {
		return nil, errors.New("! requires exactly one operand")
	}

	v, err := Evaluate(operands[0], data)
	if err != nil {
		return nil, err
	}

	return !IsTruthy(v), nil
}

func applyStrictEquals(values []interface{}) (interface{}, error) {
	if len(values) != 2 {
		return nil, errors.New("=== requires exactly two operands")
	}

	return strictEqual(values[0], values[1]), nil
}

func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func applyIn(values []interface{}) (interface{}, error) {
	if len(values) != 2 {
		return nil, errors.New("in requires exactly two operands")
	}

	list, ok := values[1].([]interface{})
	if !ok {
		if values[1] == nil {
			return false, nil
		}

		return nil, fmt.Errorf("right operand of in must be an array, got %T", values[1])
	}

	for _, item := range list {
		if strictEqual(values[0], item) {
			return true, nil
		}
	}

	return false, nil
}

func applyPlus(values []interface{}) (interface{}, error) {
	if len(values) != 2 {
		return nil, errors.New("+ requires exactly two operands")
	}

	a, aok := values[0].(float64)
	b, bok := values[1].(float64)

	if !aok || !bok {
		return nil, fmt.Errorf("operands of + must be numbers, got %T and %T", values[0], values[1])
	}

	return a + b, nil
}

func applyComparison(op string, values []interface{}) (interface{}, error) {
	if len(values) != 2 && len(values) != 3 {
		return nil, fmt.Errorf("%s requires two or three operands", op)
	}

	for i := 0; i+1 < len(values); i++ {
		a, aok := values[i].(float64)
		b, bok := values[i+1].(float64)

		if !aok || !bok {
			return nil, fmt.Errorf("operands of %s must be numbers", op)
		}

		if !compareFloats(op, a, b) {
			return false, nil
		}
	}

	return true, nil
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	default:
		return a >= b
	}
}

func applyDateComparison(op string, values []interface{}) (interface{}, error) {
	if len(values) != 2 && len(values) != 3 {
		return nil, fmt.Errorf("%s requires two or three operands", op)
	}

	times := make([]time.Time, len(values))

	for i, v := range values {
		t, err := asDateTime(v)
		if err != nil {
			return nil, fmt.Errorf("operand %d of %s: %w", i, op, err)
		}

		times[i] = t
	}

	for i := 0; i+1 < len(times); i++ {
		if !compareTimes(op, times[i], times[i+1]) {
			return false, nil
		}
	}

	return true, nil
}

func compareTimes(op string, a, b time.Time) bool {
	switch op {
	case "after":
		return a.After(b)
	case "before":
		return a.Before(b)
	case "not-after":
		return !a.After(b)
	default:
		return !a.Before(b)
	}
}

func applyPlusTime(values []interface{}) (interface{}, error) {
	if len(values) != 3 {
		return nil, errors.New("plusTime requires exactly three operands")
	}

	base, err := asDateTime(values[0])
	if err != nil {
		return nil, fmt.Errorf("first operand of plusTime: %w", err)
	}

	amount, ok := values[1].(float64)
	if !ok {
		return nil, fmt.Errorf("second operand of plusTime must be a number, got %T", values[1])
	}

	unit, ok := values[2].(string)
	if !ok {
		return nil, fmt.Errorf("third operand of plusTime must be a string, got %T", values[2])
	}

	n := int(amount)

	switch unit {
	case "day":
		return DateTime{base.AddDate(0, 0, n)}, nil
	case "hour":
		return DateTime{base.Add(time.Duration(n) * time.Hour)}, nil
	case "month":
		return DateTime{base.AddDate(0, n, 0)}, nil
	case "year":
		return DateTime{base.AddDate(n, 0, 0)}, nil
	default:
		return nil, fmt.Errorf("unknown plusTime unit %q", unit)
	}
}

func applyExtractFromUVCI(values []interface{}) (interface{}, error) {
	if len(values) != 2 {
		return nil, errors.New("extractFromUVCI requires exactly two operands")
	}

	index, ok := values[1].(float64)
	if !ok {
		return nil, errors.New("second operand of extractFromUVCI must be a number")
	}

	uvci, ok := values[0].(string)
	if !ok {
		if values[0] == nil {
			return nil, nil //nolint:nilnil
		}

		return nil, errors.New("first operand of extractFromUVCI must be a string")
	}

	fragments := strings.FieldsFunc(strings.TrimPrefix(uvci, "URN:UVCI:"), func(r rune) bool {
		return r == '/' || r == '#' || r == ':'
	})

	i := int(index)
	if i < 0 || i >= len(fragments) {
		return nil, nil //nolint:nilnil
	}

	return fragments[i], nil
}

func applyReduce(args, data interface{}) (interface{}, error) {
	operands, ok := args.([]interface{})
	if !ok || len(operands) != 3 {
		return nil, errors.New("reduce requires an array, a lambda and an initial value")
	}

	rawList, err := Evaluate(operands[0], data)
	if err != nil {
		return nil, err
	}

	accumulator, err := Evaluate(operands[2], data)
	if err != nil {
		return nil, err
	}

	if rawList == nil {
		return accumulator, nil
	}

	list, ok := rawList.([]interface{})
	if !ok {
		return nil, fmt.Errorf("first operand of reduce must evaluate to an array, got %T", rawList)
	}

	for _, current := range list {
		scope := map[string]interface{}{
			"current":     current,
			"accumulator": accumulator,
		}

		accumulator, err = Evaluate(operands[1], scope)
		if err != nil {
			return nil, err
		}
	}

	return accumulator, nil
}

// DateTime is a computed date-time value produced by plusTime and consumed
// by the date comparison operators.
type DateTime struct {
	time.Time
}

// Partial date formats accepted by the date operators, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func asDateTime(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case DateTime:
		return val.Time, nil
	case string:
		s := val

		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, truncateForLayout(s, layout)); err == nil {
				return t, nil
			}
		}

		return time.Time{}, fmt.Errorf("not a date: %q", val)
	default:
		return time.Time{}, fmt.Errorf("not a date: %T", v)
	}
}

// truncateForLayout drops sub-second and offset noise so the fixed layout
// list stays small. RFC 3339 inputs are passed through untouched.
func truncateForLayout(s, layout string) string {
	if layout == time.RFC3339 || len(s) <= len(layout) {
		return s
	}

	return s[:len(layout)]
}
