// Package textnorm normalizes OCR and PDF text before heuristic matching.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var punctReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-", "−", "-",
	" ", " ",
)

// Clean applies NFKC normalization and maps typographic punctuation to ASCII.
// Line breaks are preserved.
func Clean(s string) string {
	return punctReplacer.Replace(norm.NFKC.String(s))
}

// Fold returns Clean(s) lowercased with every whitespace run collapsed to a
// single space and a trailing space appended, so keyword lists can anchor on
// a word end with "form 1120 ".
func Fold(s string) string {
	fields := strings.Fields(strings.ToLower(Clean(s)))
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ") + " "
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
