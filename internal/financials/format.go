package financials

import (
	"math"
	"strconv"
	"strings"
)

// FormatUSD renders v as whole dollars with thousands separators, e.g. "$1,250,000"
// or "-$3,400".
func FormatUSD(v float64) string {
	neg := v < 0
	digits := strconv.FormatInt(int64(math.Round(math.Abs(v))), 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// ParseAmount parses a money string such as "$1,234.56", "(4,500)" or "1234".
// Parenthesised values are negative. ok is false when no number is present;
// only plain decimal digits are accepted, so "NaN", "Inf", exponents and hex
// floats never parse.
func ParseAmount(s string) (v float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if !isDecimal(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// isDecimal reports whether s is digits with at most one decimal point.
func isDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
