package classify

import (
	"sort"
	"strings"

	"github.com/sells-group/finextract/internal/model"
)

// keywords are matched as substrings of folded text (lowercase, single
// spaces, trailing space), so "form 1120 " does not match "form 1120-s".
var keywords = map[model.DocumentType][]string{
	model.DocForm1120S: {
		"form 1120-s",
		"form 1120s",
		"income tax return for an s corporation",
		"s corporation",
		"shareholders' pro rata share",
	},
	model.DocForm1120: {
		"form 1120 ",
		"u.s. corporation income tax return",
		"taxable income before net operating loss",
		"dividends, inclusions, and special deductions",
		"total tax (schedule j",
	},
	model.DocForm1065: {
		"form 1065",
		"u.s. return of partnership income",
		"guaranteed payments to partners",
		"partners' capital accounts",
		"analysis of net income (loss) per return",
	},
	model.DocScheduleC: {
		"schedule c (form 1040)",
		"profit or loss from business",
		"sole proprietorship",
		"principal business or profession",
		"net profit or (loss)",
	},
	model.DocScheduleK1: {
		"schedule k-1",
		"share of current year income",
		"partner's share of income",
		"shareholder's share of income",
		"final k-1",
	},
	model.DocIncomeStatement: {
		"profit and loss",
		"income statement",
		"statement of operations",
		"statement of income",
		"total operating expenses",
	},
	model.DocBalanceSheet: {
		"balance sheet",
		"statement of financial position",
		"total liabilities and equity",
		"total liabilities & equity",
		"total current assets",
	},
	model.DocFinancialStatement: {
		"financial statements",
		"accountant's compilation report",
		"independent accountant's review report",
		"notes to financial statements",
		"statements of cash flows",
	},
}

const (
	highMinMatches  = 2
	highLeadRatio   = 1.5
	mediumMaxTypes  = 2
	mediumExactHits = 1
)

// TypeScore is the keyword match count for one document type.
type TypeScore struct {
	Type    model.DocumentType
	Count   int
	Matched []string
}

// ScoreKeywords counts keyword hits per document type in folded text and
// returns types with at least one hit, best first. Ties keep priority order.
func ScoreKeywords(folded string) []TypeScore {
	var out []TypeScore
	for _, dt := range model.DocumentTypes {
		var matched []string
		for _, kw := range keywords[dt] {
			if strings.Contains(folded, kw) {
				matched = append(matched, strings.TrimSpace(kw))
			}
		}
		if len(matched) > 0 {
			out = append(out, TypeScore{Type: dt, Count: len(matched), Matched: matched})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// keywordDecision applies the ranking thresholds. It returns a
// classification with high or medium confidence, or nil when ambiguous.
func keywordDecision(scores []TypeScore) *model.DocumentClassification {
	if len(scores) == 0 {
		return nil
	}
	top := scores[0]
	runnerUp := 0
	if len(scores) > 1 {
		runnerUp = scores[1].Count
	}

	switch {
	case top.Count >= highMinMatches && float64(top.Count) > highLeadRatio*float64(runnerUp):
		return &model.DocumentClassification{
			DocumentType: top.Type,
			Confidence:   model.ConfidenceHigh,
			Indicators:   append([]string(nil), top.Matched...),
			Source:       model.SourceKeyword,
		}
	case top.Count == mediumExactHits && len(scores) <= mediumMaxTypes:
		return &model.DocumentClassification{
			DocumentType: top.Type,
			Confidence:   model.ConfidenceMedium,
			Indicators:   append([]string(nil), top.Matched...),
			Source:       model.SourceKeyword,
		}
	}
	return nil
}
