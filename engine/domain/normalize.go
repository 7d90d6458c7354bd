package domain

import (
	"regexp"
	"strings"
)

// Query normalization keeps letters, digits, whitespace, and the separators
// that appear inside part numbers (- . /). Everything else becomes a space.
var (
	queryStrip    = regexp.MustCompile(`[^\p{L}\p{N}\s./-]`)
	spaceCollapse = regexp.MustCompile(`\s+`)
	partNumStrip  = regexp.MustCompile(`[^A-Z0-9]`)
)

// NormalizeQuery lower-cases, strips punctuation except -./, and collapses
// whitespace. This is the matching and cache-key form of a raw query; the
// original text is preserved separately for logging and explanation.
func NormalizeQuery(raw string) string {
	q := strings.ToLower(strings.TrimSpace(raw))
	q = queryStrip.ReplaceAllString(q, " ")
	q = spaceCollapse.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// NormalizePartNumber upper-cases and strips every non-alphanumeric rune.
// The index stores the same form in partNumberNormalized; query side and
// index side must stay in lock-step.
func NormalizePartNumber(pn string) string {
	return partNumStrip.ReplaceAllString(strings.ToUpper(pn), "")
}
