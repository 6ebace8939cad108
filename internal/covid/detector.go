// Package covid detects pandemic relief recognized as income so it can be
// removed from normalized earnings.
package covid

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/textnorm"
)

const (
	firstRelevantYear = 2020
	lastRelevantYear  = 2024

	windowBefore = 50
	windowAfter  = 100

	// maxPlausibleAmount is the PPP per-borrower cap; anything larger is
	// assumed to be an unrelated figure such as revenue.
	maxPlausibleAmount = 10_000_000

	elevatedOtherIncomePct = 0.10
	elevatedOtherIncomeMin = 5_000

	// DirectionSubtract marks relief removed from earnings during normalization.
	DirectionSubtract = "subtract"
)

// Category is a keyword family.
type Category string

const (
	CategoryPPP   Category = "ppp"
	CategoryEIDL  Category = "eidl"
	CategoryERC   Category = "erc"
	CategoryOther Category = "other_relief"
)

type family struct {
	category  Category
	label     string
	threshold float64
	keywords  *regexp.Regexp
	rationale string
}

var families = []family{
	{
		category:  CategoryPPP,
		label:     "PPP loan forgiveness",
		threshold: 5_000,
		keywords:  regexp.MustCompile(`paycheck protection program|ppp loan forgiveness|forgiveness of ppp|ppp forgiveness|\bppp loan|\bppp\b`),
		rationale: "PPP forgiveness is non-recurring, tax-exempt income and is removed from normalized earnings",
	},
	{
		category:  CategoryEIDL,
		label:     "EIDL advance",
		threshold: 1_000,
		keywords:  regexp.MustCompile(`economic injury disaster|targeted eidl|eidl advance|eidl grant|\beidl\b`),
		rationale: "EIDL advances are one-time grants and are removed from normalized earnings",
	},
	{
		category:  CategoryERC,
		label:     "Employee Retention Credit",
		threshold: 5_000,
		keywords:  regexp.MustCompile(`employee retention (?:tax )?credit|\bertc\b|\berc\b`),
		rationale: "the Employee Retention Credit is a one-time payroll credit and is removed from normalized earnings",
	},
	{
		category:  CategoryOther,
		label:     "other COVID relief",
		threshold: 1_000,
		keywords:  regexp.MustCompile(`restaurant revitalization|shuttered venue|cares act|covid(?:-19)? relief|pandemic relief|provider relief fund`),
		rationale: "pandemic relief grants are non-recurring; confirm treatment before normalizing",
	},
}

// amountPattern requires a dollar sign, thousands separators, or at least five
// digits so that years and line numbers are not read as amounts.
var amountPattern = regexp.MustCompile(`\$\s*\d[\d,]*(?:\.\d{1,2})?|\b\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?\b|\b\d{5,}(?:\.\d{1,2})?\b`)

// IsRelevantYear reports whether relief could have been recognized in year.
func IsRelevantYear(year int) bool {
	return year >= firstRelevantYear && year <= lastRelevantYear
}

// Mentions returns the relief categories whose keywords appear in rawText,
// regardless of year or amount.
func Mentions(rawText string) []Category {
	text := strings.ToLower(textnorm.Clean(rawText))
	var out []Category
	for _, f := range families {
		if f.keywords.MatchString(text) {
			out = append(out, f.category)
		}
	}
	return out
}

// Detect scans raw text for relief keywords and nearby dollar amounts. A
// taxYear of zero falls back to the data's own tax year. Amounts already
// present in the structured data are kept when larger than detected ones.
func Detect(data *model.StructuredFinancialData, rawText string, taxYear int) model.CovidSummary {
	if taxYear == 0 && data != nil {
		taxYear = data.TaxYear
	}
	out := model.CovidSummary{
		TaxYear:  taxYear,
		Findings: []model.CovidFinding{},
		Warnings: []string{},
	}
	if !IsRelevantYear(taxYear) {
		return out
	}
	out.IsCovidRelevantYear = true

	var reported model.CovidAdjustments
	if data != nil && data.CovidAdjustments != nil {
		reported = *data.CovidAdjustments
	}

	text := strings.ToLower(textnorm.Clean(rawText))
	for _, f := range families {
		prior := *field(&reported, f.category)
		matches := f.keywords.FindAllStringIndex(text, -1)

		amount, keyword := 0.0, ""
		if len(matches) > 0 {
			amount, keyword = largestAmount(text, matches, f.threshold)
		}

		switch {
		case amount > prior:
			*field(&out.Adjustments, f.category) = amount
			out.Findings = append(out.Findings, finding(f, amount, keyword))
		case prior > 0:
			*field(&out.Adjustments, f.category) = prior
			out.Findings = append(out.Findings, finding(f, prior, "reported schedule"))
			amount = prior
		case len(matches) > 0:
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"%s referenced (%q) in %d but no amount could be extracted; manual review required",
				f.label, keyword, taxYear))
			continue
		default:
			continue
		}
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"%s of %s detected in %d; subtract from normalized earnings",
			f.label, financials.FormatUSD(amount), taxYear))
	}

	out.TotalAdjustment = out.Adjustments.Total()

	if data != nil && out.TotalAdjustment == 0 {
		if w := elevatedOtherIncome(data, taxYear); w != "" {
			out.Warnings = append(out.Warnings, w)
		}
	}
	return out
}

// largestAmount returns the largest plausible amount above threshold found in
// the window around any match, along with the keyword that produced it. When
// nothing qualifies it returns zero and the first keyword.
func largestAmount(text string, matches [][]int, threshold float64) (float64, string) {
	var best float64
	bestKeyword := text[matches[0][0]:matches[0][1]]
	for _, m := range matches {
		start := max(0, m[0]-windowBefore)
		end := min(len(text), m[1]+windowAfter)
		for _, raw := range amountPattern.FindAllString(text[start:end], -1) {
			v, ok := financials.ParseAmount(raw)
			if !ok {
				continue
			}
			v = math.Abs(v)
			if v <= threshold || v > maxPlausibleAmount {
				continue
			}
			if v > best {
				best = v
				bestKeyword = text[m[0]:m[1]]
			}
		}
	}
	return best, bestKeyword
}

func field(adj *model.CovidAdjustments, c Category) *float64 {
	switch c {
	case CategoryPPP:
		return &adj.PPPLoanForgiveness
	case CategoryEIDL:
		return &adj.EIDLAdvances
	case CategoryERC:
		return &adj.EmployeeRetentionCredit
	default:
		return &adj.OtherRelief
	}
}

func finding(f family, amount float64, keyword string) model.CovidFinding {
	return model.CovidFinding{
		Category:  string(f.category),
		Amount:    amount,
		Direction: DirectionSubtract,
		Keyword:   keyword,
		Rationale: f.rationale,
	}
}

func elevatedOtherIncome(data *model.StructuredFinancialData, taxYear int) string {
	rev := financials.Revenue(data)
	other := data.IncomeStatement.OtherIncome
	if rev <= 0 || other <= elevatedOtherIncomeMin || other <= rev*elevatedOtherIncomePct {
		return ""
	}
	return fmt.Sprintf(
		"other income of %s (%.1f%% of revenue) in %d may include unlabeled COVID relief; review before normalizing",
		financials.FormatUSD(other), other/rev*100, taxYear)
}
