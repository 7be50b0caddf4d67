/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dcc

import "strings"

// Name is the certificate holder name. The transliterated fields follow the
// ICAO 9303 convention where "<" separates name parts and fills unused
// positions.
type Name struct {
	GivenName            string `cbor:"gn,omitempty" json:"gn,omitempty"`
	GivenTransliterated  string `cbor:"gnt,omitempty" json:"gnt,omitempty"`
	FamilyName           string `cbor:"fn,omitempty" json:"fn,omitempty"`
	FamilyTransliterated string `cbor:"fnt,omitempty" json:"fnt,omitempty"`
}

// Trimmed returns the name with leading and trailing "<" filler removed
// from the transliterated fields.
func (n Name) Trimmed() Name {
	n.GivenTransliterated = strings.Trim(n.GivenTransliterated, "<")
	n.FamilyTransliterated = strings.Trim(n.FamilyTransliterated, "<")

	return n
}

// Full returns the display name, preferring the readable fields over the
// transliterated ones.
func (n Name) Full() string {
	given := n.GivenName
	if given == "" {
		given = n.GivenTransliterated
	}

	family := n.FamilyName
	if family == "" {
		family = n.FamilyTransliterated
	}

	return strings.TrimSpace(given + " " + family)
}
