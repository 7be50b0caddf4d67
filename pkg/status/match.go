/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package status

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dcckit/dcc/pkg/doc/dcc"
)

// stripDiacritics removes combining marks after canonical decomposition, so
// "Müller" and "Muller" compare equal.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SameHolder reports whether two certificates belong to the same person:
// normalized given and family names match and the birth date string matches
// exactly. Only the first name part is compared, so a certificate issued
// with middle names still groups with one issued without
// ("ERIKA<MARIA" matches "ERIKA<JOHANNA").
func SameHolder(a, b *dcc.Certificate) bool {
	return a.BirthDate == b.BirthDate &&
		normalizeNamePart(a.Name.GivenTransliterated) == normalizeNamePart(b.Name.GivenTransliterated) &&
		normalizeNamePart(a.Name.FamilyTransliterated) == normalizeNamePart(b.Name.FamilyTransliterated)
}

// normalizeNamePart canonicalizes one transliterated name field for holder
// comparison: filler trimmed, everything after the first part separator
// dropped, diacritics stripped, case folded.
func normalizeNamePart(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "<")

	if first, _, found := strings.Cut(name, "<"); found {
		name = first
	}

	stripped, _, err := transform.String(stripDiacritics, name)
	if err == nil {
		name = stripped
	}

	return strings.ToUpper(name)
}
