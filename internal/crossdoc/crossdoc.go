// Package crossdoc reconciles the documents of one report against each
// other: tax returns against financial statements, K-1s against their
// return, and each year against the prior year.
package crossdoc

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
)

// minAbsDifference suppresses rounding noise on every money comparison.
const minAbsDifference = 100.0

// band grades a percentage difference: above warn is a warning, above err
// an error. A zero err never escalates.
type band struct {
	warn float64
	err  float64
}

func (b band) severity(pct float64) (model.Severity, bool) {
	switch {
	case b.err > 0 && pct > b.err:
		return model.SeverityError, true
	case pct > b.warn:
		return model.SeverityWarning, true
	}
	return "", false
}

// Validate groups docs by tax year and runs every comparison family. Only
// comparisons with at least one discrepancy are returned. Documents without
// a tax year are ignored.
func Validate(docs []model.StructuredFinancialData) []model.CrossDocValidationResult {
	byYear := map[int][]*model.StructuredFinancialData{}
	for i := range docs {
		d := &docs[i]
		if d.TaxYear == 0 {
			zap.L().Debug("crossdoc: skipping document without tax year", zap.String("document_id", d.DocumentID))
			continue
		}
		byYear[d.TaxYear] = append(byYear[d.TaxYear], d)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	out := []model.CrossDocValidationResult{}
	for _, y := range years {
		out = append(out, TaxVsStatement(y, byYear[y])...)
		out = append(out, K1VsReturn(y, byYear[y])...)
	}
	out = append(out, YearOverYear(byYear)...)

	zap.L().Debug("crossdoc: validation complete",
		zap.Int("documents", len(docs)),
		zap.Int("years", len(years)),
		zap.Int("results", len(out)),
	)
	return out
}

// ForDocument returns the results that involve documentID.
func ForDocument(results []model.CrossDocValidationResult, documentID string) []model.CrossDocValidationResult {
	var out []model.CrossDocValidationResult
	for _, r := range results {
		if r.Involves(documentID) {
			out = append(out, r)
		}
	}
	return out
}

func newResult(kind model.ComparisonType, year int, discrepancies []model.Discrepancy, ids ...string) (model.CrossDocValidationResult, bool) {
	if len(discrepancies) == 0 {
		return model.CrossDocValidationResult{}, false
	}
	passed := true
	for _, d := range discrepancies {
		if d.Severity == model.SeverityError {
			passed = false
		}
	}
	return model.CrossDocValidationResult{
		ComparisonType:    kind,
		TaxYear:           year,
		DocumentsCompared: ids,
		Passed:            passed,
		Discrepancies:     discrepancies,
	}, true
}

func source(d *model.StructuredFinancialData) string {
	return fmt.Sprintf("%s (%s)", d.DocumentID, d.DocumentType)
}

func pctDiff(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return math.Abs(a-b) / math.Abs(a) * 100
}

func discrepancy(field string, a, b *model.StructuredFinancialData, va, vb, pct float64, sev model.Severity, msg string) model.Discrepancy {
	return model.Discrepancy{
		Field:             field,
		SourceA:           source(a),
		ValueA:            va,
		SourceB:           source(b),
		ValueB:            vb,
		Difference:        math.Abs(va - vb),
		PercentDifference: math.Round(pct*100) / 100,
		Severity:          sev,
		Message:           msg,
	}
}

func usd(v float64) string {
	return financials.FormatUSD(v)
}
