// Package validation evaluates StructuredFinancialData against an explicit
// list of independent rules.
package validation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/model"
)

// Category groups rules for listing.
type Category string

const (
	CategoryBalanceSheet    Category = "balance_sheet"
	CategoryIncomeStatement Category = "income_statement"
	CategorySDE             Category = "sde"
	CategoryScheduleM1      Category = "schedule_m1"
	CategoryDistributions   Category = "distributions"
	CategoryCovid           Category = "covid"
	CategoryMargin          Category = "margin"
	CategoryRelatedParty    Category = "related_party"
	CategoryYearOverYear    Category = "year_over_year"
)

// CheckFunc inspects one document and returns a result when the rule
// triggers, or nil.
type CheckFunc func(d *model.StructuredFinancialData, rawText string) *model.ValidationResult

// Rule is a stateless validation check.
type Rule struct {
	ID       string
	Name     string
	Category Category
	Severity model.Severity
	Check    CheckFunc
}

// result builds a ValidationResult for r. Info results pass; errors and
// warnings fail.
func (r Rule) result(field, format string, args ...any) *model.ValidationResult {
	return &model.ValidationResult{
		ID:       r.ID,
		Name:     r.Name,
		Severity: r.Severity,
		Passed:   r.Severity == model.SeverityInfo,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Engine runs a fixed rule list.
type Engine struct {
	rules []Rule
}

// NewEngine creates an Engine over rules. The slice is copied.
func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: append([]Rule(nil), rules...)}
}

// NewDefaultEngine creates an Engine with DefaultRules.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultRules())
}

// Rules returns a copy of the engine's rules.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Run evaluates every rule and collects the results in rule order. A rule
// that panics is logged and skipped.
func (e *Engine) Run(d *model.StructuredFinancialData, rawText string) []model.ValidationResult {
	results := []model.ValidationResult{}
	if d == nil {
		return results
	}
	for _, r := range e.rules {
		if res := runRule(r, d, rawText); res != nil {
			results = append(results, *res)
		}
	}
	return results
}

func runRule(r Rule, d *model.StructuredFinancialData, rawText string) (res *model.ValidationResult) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Warn("validation: rule panicked, skipping",
				zap.String("rule", r.ID),
				zap.String("document_id", d.DocumentID),
				zap.Any("panic", p),
			)
			res = nil
		}
	}()
	return r.Check(d, rawText)
}

// Summarize aggregates results. Blockers are failed error-severity results.
func Summarize(results []model.ValidationResult) model.ValidationSummary {
	s := model.ValidationSummary{
		Total:    len(results),
		Blockers: []model.ValidationResult{},
	}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		switch r.Severity {
		case model.SeverityError:
			s.Errors++
			if !r.Passed {
				s.Blockers = append(s.Blockers, r)
			}
		case model.SeverityWarning:
			s.Warnings++
		case model.SeverityInfo:
			s.Info++
		}
	}
	return s
}

// Report runs the engine and returns results with their summary.
func (e *Engine) Report(d *model.StructuredFinancialData, rawText string) model.ValidationReport {
	results := e.Run(d, rawText)
	return model.ValidationReport{Results: results, Summary: Summarize(results)}
}
