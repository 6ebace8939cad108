// Package confidence scores how far an extraction can be trusted and routes
// it to ready, escalation or human review.
package confidence

import (
	"fmt"
	"math"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/validation"
)

// Component weights.
const (
	weightClassification = 0.20
	weightCompleteness   = 0.30
	weightValidation     = 0.30
	weightConsistency    = 0.20
)

// Recommendation thresholds.
const (
	ReadyThreshold      = 70
	EscalationThreshold = 50
)

// Adjustments applied after weighting.
const (
	crossDocErrorPenalty   = 10
	crossDocWarningPenalty = 5
	DegradedPenalty        = 5
)

// Scorer computes ConfidenceScores. It holds no state.
type Scorer struct{}

// NewScorer returns a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score combines classification quality, completeness, validation outcomes
// and internal consistency. cross holds the cross-document results that
// involve this document and may be nil.
func (s *Scorer) Score(in *model.Stage2Output, results []model.ValidationResult, cross []model.CrossDocValidationResult) model.ConfidenceScore {
	return Score(in, results, cross)
}

// Score is the stateless form of Scorer.Score.
func Score(in *model.Stage2Output, results []model.ValidationResult, cross []model.CrossDocValidationResult) model.ConfidenceScore {
	if in == nil {
		in = &model.Stage2Output{Classification: model.UnknownClassification()}
	}
	var reasoning []string

	cls, r := classificationScore(in.Classification)
	reasoning = append(reasoning, r...)

	comp, missing, r := completenessScore(&in.Data)
	reasoning = append(reasoning, r...)

	val, r := validationScore(results)
	reasoning = append(reasoning, r...)

	cons, r := consistencyScore(&in.Data)
	reasoning = append(reasoning, r...)

	weighted := weightClassification*float64(cls) +
		weightCompleteness*float64(comp) +
		weightValidation*float64(val) +
		weightConsistency*float64(cons)
	overall := int(math.Round(weighted))

	if adj, reason := crossDocAdjustment(cross); adj != 0 {
		overall += adj
		reasoning = append(reasoning, reason)
	}
	overall = clamp(overall)

	return model.ConfidenceScore{
		Overall: overall,
		Breakdown: model.ConfidenceBreakdown{
			Classification:   cls,
			DataCompleteness: comp,
			Validation:       val,
			Consistency:      cons,
		},
		Recommendation:      Recommend(overall),
		Reasoning:           reasoning,
		MissingCriticalData: missing,
	}
}

// Recommend maps an overall score to a routing decision.
func Recommend(overall int) model.Recommendation {
	switch {
	case overall >= ReadyThreshold:
		return model.RecommendReady
	case overall >= EscalationThreshold:
		return model.RecommendOpusEscalation
	}
	return model.RecommendHumanReview
}

// Adjust returns a copy of score with delta applied to overall, the
// recommendation recomputed and reason recorded.
func Adjust(score model.ConfidenceScore, delta int, reason string) model.ConfidenceScore {
	out := score
	out.Reasoning = append(append([]string(nil), score.Reasoning...), reason)
	out.MissingCriticalData = append([]string(nil), score.MissingCriticalData...)
	out.Overall = clamp(score.Overall + delta)
	out.Recommendation = Recommend(out.Overall)
	return out
}

// Degrade applies the penalty for an output produced without AI validation.
func Degrade(score model.ConfidenceScore) model.ConfidenceScore {
	return Adjust(score, -DegradedPenalty, fmt.Sprintf("AI validation unavailable: -%d", DegradedPenalty))
}

func classificationScore(c model.DocumentClassification) (int, []string) {
	score := 40
	switch c.Confidence {
	case model.ConfidenceHigh:
		score = 100
	case model.ConfidenceMedium:
		score = 70
	}
	reasons := []string{fmt.Sprintf("classification %s as %s: base %d", c.Confidence, c.DocumentType, score)}

	// The cap applies to the base so missing details still lower an UNKNOWN.
	if c.DocumentType == model.DocUnknown && score > 20 {
		score = 20
		reasons = append(reasons, "document type unknown: capped at 20")
	}
	if c.TaxYear == 0 {
		score -= 10
		reasons = append(reasons, "tax year not identified: -10")
	}
	if c.EntityName == "" {
		score -= 5
		reasons = append(reasons, "entity name not identified: -5")
	}
	if len(c.Indicators) >= 3 {
		score = min(score+5, 100)
		reasons = append(reasons, fmt.Sprintf("%d classification indicators: +5", len(c.Indicators)))
	}
	return max(score, 0), reasons
}

type criticalField struct {
	name      string
	populated func(d *model.StructuredFinancialData) bool
}

var incomeFields = []criticalField{
	{"gross_receipts_sales", func(d *model.StructuredFinancialData) bool { return d.IncomeStatement.GrossReceiptsSales != 0 }},
	{"net_income", func(d *model.StructuredFinancialData) bool { return d.IncomeStatement.NetIncome != 0 }},
	{"total_income", func(d *model.StructuredFinancialData) bool { return d.IncomeStatement.TotalIncome != 0 }},
	{"total_deductions", func(d *model.StructuredFinancialData) bool { return d.IncomeStatement.TotalDeductions != 0 }},
	{"owner_compensation", func(d *model.StructuredFinancialData) bool {
		return d.Expenses.CompensationOfOfficers != 0 || d.GuaranteedPayments != 0 || financials.OwnerCompensation(d) != 0
	}},
}

var balanceFields = []criticalField{
	{"total_assets", func(d *model.StructuredFinancialData) bool { return d.BalanceSheet.EndOfYear.TotalAssets != 0 }},
	{"total_liabilities", func(d *model.StructuredFinancialData) bool { return d.BalanceSheet.EndOfYear.TotalLiabilities != 0 }},
	{"total_equity", func(d *model.StructuredFinancialData) bool { return d.BalanceSheet.EndOfYear.TotalEquity != 0 }},
}

// completenessScore is the share of critical fields populated. Balance sheet
// fields only count when a balance sheet was extracted.
func completenessScore(d *model.StructuredFinancialData) (int, []string, []string) {
	required := append([]criticalField(nil), incomeFields...)
	var reasons []string
	if d.BalanceSheet.IsEmpty() {
		reasons = append(reasons, "no balance sheet extracted; not penalized")
	} else {
		required = append(required, balanceFields...)
	}

	missing := []string{}
	for _, f := range required {
		if !f.populated(d) {
			missing = append(missing, f.name)
		}
	}
	have := len(required) - len(missing)
	score := int(math.Round(float64(have) / float64(len(required)) * 100))
	reasons = append(reasons, fmt.Sprintf("%d of %d critical fields populated: %d", have, len(required), score))
	return score, missing, reasons
}

func validationScore(results []model.ValidationResult) (int, []string) {
	var errs, warns, infos int
	for _, r := range results {
		switch r.Severity {
		case model.SeverityError:
			errs++
		case model.SeverityWarning:
			warns++
		case model.SeverityInfo:
			infos++
		}
	}
	score := max(100-15*errs-5*warns-infos, 0)
	return score, []string{fmt.Sprintf("validation: %d errors, %d warnings, %d info: %d", errs, warns, infos, score)}
}

func consistencyScore(d *model.StructuredFinancialData) (int, []string) {
	score := 100
	var reasons []string
	if _, bad := validation.BalanceSheetImbalance(d); bad {
		score -= 20
		reasons = append(reasons, "balance sheet does not balance: -20")
	}
	if _, bad := validation.GrossProfitMismatch(d); bad {
		score -= 15
		reasons = append(reasons, "gross profit does not reconcile: -15")
	}
	if _, bad := validation.COGSMismatch(d); bad {
		score -= 10
		reasons = append(reasons, "COGS detail does not reconcile: -10")
	}
	if dist := financials.Distributions(d); dist > 0 && dist > 2*math.Max(financials.NetIncome(d), 0) {
		score -= 10
		reasons = append(reasons, "distributions exceed 2x net income: -10")
	}
	return max(score, 0), reasons
}

func crossDocAdjustment(cross []model.CrossDocValidationResult) (int, string) {
	var hasErr, hasWarn bool
	for _, c := range cross {
		hasErr = hasErr || c.HasSeverity(model.SeverityError)
		hasWarn = hasWarn || c.HasSeverity(model.SeverityWarning)
	}
	switch {
	case hasErr:
		return -crossDocErrorPenalty, fmt.Sprintf("cross-document errors: -%d", crossDocErrorPenalty)
	case hasWarn:
		return -crossDocWarningPenalty, fmt.Sprintf("cross-document warnings: -%d", crossDocWarningPenalty)
	}
	return 0, ""
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}
