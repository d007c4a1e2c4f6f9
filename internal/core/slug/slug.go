// Package slug derives file-system safe names from entity and report names.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	invalidChars = regexp.MustCompile(`[^\w\s-]`)
	separators   = regexp.MustCompile(`[-\s]+`)
)

// Make lowercases value, folds accented characters to ASCII, drops anything
// that is not a word character, space or hyphen and collapses runs of spaces
// and hyphens into a single hyphen.
func Make(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}

	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)

	out := invalidChars.ReplaceAllString(strings.ToLower(ascii), "")
	out = separators.ReplaceAllString(out, "-")
	return strings.Trim(out, "-_ ")
}
