package classify

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/textnorm"
)

// taxYearPatterns run against folded text in order; the first pattern that
// yields an in-range year wins. Explicit phrasing first, bare years last.
var taxYearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tax year (?:beginning|ending)?[ ,]*(?:[a-z]+\.? \d{1,2},? )?(\d{4})`),
	regexp.MustCompile(`for (?:the )?(?:calendar |fiscal )?year (?:ended |ending )?(?:[a-z]+\.? \d{1,2},? )?(\d{4})`),
	regexp.MustCompile(`(?:december|dec\.?) 31,? (\d{4})`),
	regexp.MustCompile(`(?:form|schedule) [0-9a-z-]+ \(?(\d{4})\)?`),
	regexp.MustCompile(`\b(\d{4}) (?:form|return|schedule)\b`),
	regexp.MustCompile(`\b(20[1-3]\d)\b`),
}

// ExtractTaxYear returns the tax year named in the text, or 0.
func ExtractTaxYear(raw string) int {
	folded := textnorm.Fold(raw)
	for _, re := range taxYearPatterns {
		for _, m := range re.FindAllStringSubmatch(folded, -1) {
			y, err := strconv.Atoi(m[1])
			if err == nil && model.ValidTaxYear(y) {
				return y
			}
		}
	}
	return 0
}

var labeledNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)name of (?:corporation|partnership|business|company|proprietor)\s*[:\-]?\s*([^\n]{3,100})`),
	regexp.MustCompile(`(?i)business name\s*[:\-]?\s*([^\n]{3,100})`),
	regexp.MustCompile(`(?i)(?:legal|entity|company) name\s*[:\-]?\s*([^\n]{3,100})`),
	regexp.MustCompile(`(?im)^\s*name\s*[:\-]\s*([^\n]{3,100})`),
}

// suffixNamePattern matches a run of capitalized words ending in a legal suffix.
var suffixNamePattern = regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9&'.\-]*\s){1,6}(?:LLC|L\.L\.C\.|Inc\.?|Incorporated|Corp\.?|Corporation|Co\.|LP|LLP|PLLC|PC|P\.C\.|Ltd\.?))(?:[\s,]|$)`)

// labelNoise catches label lines whose "value" is really more form text.
var labelNoise = regexp.MustCompile(`(?i)^(?:and|or|if|see|type|print|number|\(|employer)`)

// suffixNoise rejects form titles such as "S Corporation".
var suffixNoise = regexp.MustCompile(`(?i)^(?:an? |the )?[sc] corp(?:oration)?$|\b(?:form|return|schedule|tax)\b`)

// ExtractEntityName returns the filer name, trying labeled patterns before a
// generic "<Name> LLC/Inc/Corp" match. It returns "" when nothing qualifies.
func ExtractEntityName(raw string) string {
	text := textnorm.Clean(raw)
	for _, re := range labeledNamePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if name := cleanName(m[1]); name != "" && !labelNoise.MatchString(name) {
				return name
			}
		}
	}
	for _, m := range suffixNamePattern.FindAllStringSubmatch(text, -1) {
		if name := cleanName(m[1]); name != "" && !suffixNoise.MatchString(name) {
			return name
		}
	}
	return ""
}

func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " :-,;")
	if len(s) < 3 || len(s) > 100 {
		return ""
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return s
		}
	}
	return ""
}
