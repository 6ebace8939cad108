package ppp

import (
	"regexp"
	"strings"
)

var entitySuffixes = regexp.MustCompile(
	`(?i)\s*,?\s*(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|L\.?P\.?|LLP|L\.?L\.?P\.?|` +
		`PLLC|P\.?L\.?L\.?C\.?|P\.?C\.?)\s*\.?\s*$`)

// dbaPattern drops a trade name that follows the legal name.
var dbaPattern = regexp.MustCompile(`(?i)\s+(DBA|D/B/A)\s+.*$`)

var punctuation = regexp.MustCompile(`[^A-Z0-9&' ]+`)

// Normalize reduces a borrower name to the form used for matching: upper
// case, no trade name, no leading "THE", no entity suffix and single spaces.
func Normalize(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = dbaPattern.ReplaceAllString(n, "")
	n = entitySuffixes.ReplaceAllString(n, "")
	n = punctuation.ReplaceAllString(n, " ")
	n = strings.Join(strings.Fields(n), " ")
	return strings.TrimPrefix(n, "THE ")
}
