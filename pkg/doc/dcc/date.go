/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dcc

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const dateLayout = "2006-01-02"

// Date is a calendar date as used by certificate entries (vaccination
// occurrence, recovery windows). It serializes as "YYYY-MM-DD" in both JSON
// and CBOR. The zero value marshals as an empty string.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}

	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}

	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	return d.decodeString(string(data), `"`)
}

func (d Date) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d.String())
}

func (d *Date) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}

	return d.decodeString(`"`+s+`"`, `"`)
}

func (d *Date) decodeString(data, quote string) error {
	s := data
	if len(s) >= 2 && s[0] == quote[0] && s[len(s)-1] == quote[0] {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}

	// Entry dates occasionally carry a full timestamp; only the date part
	// is significant.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}

	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}

// DateTime is a point in time with offset, as used for test sample
// collection. It serializes as RFC 3339 in JSON and CBOR.
type DateTime struct {
	time.Time
}

// ParseDateTime parses an RFC 3339 string.
func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return DateTime{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}

	return DateTime{Time: t}, nil
}

func (d DateTime) String() string {
	if d.IsZero() {
		return ""
	}

	return d.Format(time.RFC3339)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	return d.decodeString(s)
}

func (d DateTime) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d.String())
}

func (d *DateTime) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}

	return d.decodeString(s)
}

func (d *DateTime) decodeString(s string) error {
	if s == "" || s == "null" {
		*d = DateTime{}
		return nil
	}

	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}
