package inventory

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var upper = cases.Upper(language.Und)

// NormalizeCode canonicalises a product code: NFKC, trimmed, upper case.
// Codes typed with full-width digits or mixed case resolve to one product.
func NormalizeCode(code string) string {
	return upper.String(norm.NFKC.String(strings.TrimSpace(code)))
}

// NormalizeText applies NFC and trims surrounding space.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
