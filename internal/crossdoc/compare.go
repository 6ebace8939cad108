package crossdoc

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
)

type fieldCheck struct {
	field string
	get   financials.Accessor
	band  band
}

var taxVsStatementChecks = []fieldCheck{
	{"revenue", financials.Revenue, band{warn: 2, err: 10}},
	{"cost_of_goods_sold", financials.CostOfGoodsSold, band{warn: 2, err: 10}},
	{"net_income", financials.NetIncome, band{warn: 5, err: 15}},
	{"total_assets", financials.TotalAssets, band{warn: 1, err: 5}},
}

// TaxVsStatement compares every tax return of a year with every financial
// statement of the same year. Fields missing on either side are skipped.
func TaxVsStatement(year int, docs []*model.StructuredFinancialData) []model.CrossDocValidationResult {
	var out []model.CrossDocValidationResult
	for _, tax := range docs {
		if !tax.DocumentType.IsTaxReturn() {
			continue
		}
		for _, stmt := range docs {
			if !stmt.DocumentType.IsFinancialStatement() {
				continue
			}
			var found []model.Discrepancy
			for _, c := range taxVsStatementChecks {
				a, b := c.get(tax), c.get(stmt)
				if a == 0 || b == 0 || math.Abs(a-b) < minAbsDifference {
					continue
				}
				pct := pctDiff(a, b)
				sev, ok := c.band.severity(pct)
				if !ok {
					continue
				}
				found = append(found, discrepancy(c.field, tax, stmt, a, b, pct, sev, fmt.Sprintf(
					"%s differs by %.1f%% between tax return (%s) and financial statement (%s)",
					c.field, pct, usd(a), usd(b))))
			}
			if r, ok := newResult(model.CompareTaxVsStatement, year, found, tax.DocumentID, stmt.DocumentID); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

const k1OrdinaryIncomeTolerancePct = 5.0

func ordinaryIncome(d *model.StructuredFinancialData) float64 {
	if d.ScheduleK != nil && d.ScheduleK.OrdinaryBusinessIncome != 0 {
		return d.ScheduleK.OrdinaryBusinessIncome
	}
	return d.IncomeStatement.NetIncome
}

// K1VsReturn flags K-1 figures that exceed the pass-through return's total.
// K-1 amounts are portions of the whole, so only excess is an anomaly.
func K1VsReturn(year int, docs []*model.StructuredFinancialData) []model.CrossDocValidationResult {
	var k1s, returns []*model.StructuredFinancialData
	for _, d := range docs {
		switch {
		case d.DocumentType == model.DocScheduleK1:
			k1s = append(k1s, d)
		case d.DocumentType.IsPassThroughReturn():
			returns = append(returns, d)
		}
	}

	var out []model.CrossDocValidationResult
	for _, ret := range returns {
		for _, k1 := range k1s {
			found := compareK1(ret, k1)
			if r, ok := newResult(model.CompareK1VsReturn, year, found, ret.DocumentID, k1.DocumentID); ok {
				out = append(out, r)
			}
		}
		if len(k1s) > 1 {
			if r, ok := compareK1Sum(year, ret, k1s); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

func compareK1(ret, k1 *model.StructuredFinancialData) []model.Discrepancy {
	var found []model.Discrepancy

	whole, part := math.Abs(ordinaryIncome(ret)), math.Abs(ordinaryIncome(k1))
	if whole > 0 && part > whole*(1+k1OrdinaryIncomeTolerancePct/100) {
		pct := (part - whole) / whole * 100
		found = append(found, discrepancy("ordinary_business_income", ret, k1, whole, part, pct, model.SeverityError,
			fmt.Sprintf("K-1 ordinary income %s exceeds the return total %s by %.1f%%", usd(part), usd(whole), pct)))
	}

	outright := []struct {
		field string
		get   financials.Accessor
	}{
		{"section_179_deduction", financials.Section179},
		{"distributions", financials.Distributions},
	}
	for _, c := range outright {
		whole, part := c.get(ret), c.get(k1)
		if whole <= 0 || part <= whole {
			continue
		}
		pct := (part - whole) / whole * 100
		found = append(found, discrepancy(c.field, ret, k1, whole, part, pct, model.SeverityWarning,
			fmt.Sprintf("K-1 %s %s exceeds the return total %s", c.field, usd(part), usd(whole))))
	}
	return found
}

// compareK1Sum checks that the K-1s of a year together do not exceed the
// return's ordinary income.
func compareK1Sum(year int, ret *model.StructuredFinancialData, k1s []*model.StructuredFinancialData) (model.CrossDocValidationResult, bool) {
	whole := math.Abs(ordinaryIncome(ret))
	var sum float64
	ids := []string{ret.DocumentID}
	for _, k1 := range k1s {
		sum += math.Abs(ordinaryIncome(k1))
		ids = append(ids, k1.DocumentID)
	}
	if whole == 0 || sum <= whole*(1+k1OrdinaryIncomeTolerancePct/100) {
		return model.CrossDocValidationResult{}, false
	}
	pct := (sum - whole) / whole * 100
	d := model.Discrepancy{
		Field:             "ordinary_business_income",
		SourceA:           source(ret),
		ValueA:            whole,
		SourceB:           fmt.Sprintf("%d K-1s", len(k1s)),
		ValueB:            sum,
		Difference:        sum - whole,
		PercentDifference: math.Round(pct*100) / 100,
		Severity:          model.SeverityError,
		Message:           fmt.Sprintf("K-1 ordinary income totals %s, exceeding the return's %s", usd(sum), usd(whole)),
	}
	return newResult(model.CompareK1VsReturn, year, []model.Discrepancy{d}, ids...)
}

var (
	revenueSwing = band{warn: 30, err: 50}
	marginSwing  = band{warn: 10, err: 20}
	ownerSwing   = band{warn: 50}
	assetSwing   = band{warn: 50, err: 75}
)

// PrimaryDocument picks the document that represents a year: a tax return
// over a financial statement, never a K-1. Ties keep input order.
func PrimaryDocument(docs []*model.StructuredFinancialData) *model.StructuredFinancialData {
	var stmt *model.StructuredFinancialData
	for _, d := range docs {
		switch {
		case d.DocumentType.IsTaxReturn():
			return d
		case stmt == nil && d.DocumentType.IsFinancialStatement():
			stmt = d
		}
	}
	return stmt
}

// YearOverYear compares each year's primary document with the primary
// document of the preceding calendar year. Non-consecutive years are not
// compared.
func YearOverYear(byYear map[int][]*model.StructuredFinancialData) []model.CrossDocValidationResult {
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	var out []model.CrossDocValidationResult
	for i := 1; i < len(years); i++ {
		if years[i] != years[i-1]+1 {
			continue
		}
		prior, cur := PrimaryDocument(byYear[years[i-1]]), PrimaryDocument(byYear[years[i]])
		if prior == nil || cur == nil {
			continue
		}
		found := compareYears(prior, cur)
		if r, ok := newResult(model.CompareYearOverYear, years[i], found, prior.DocumentID, cur.DocumentID); ok {
			out = append(out, r)
		}
	}
	return out
}

func compareYears(prior, cur *model.StructuredFinancialData) []model.Discrepancy {
	var found []model.Discrepancy

	money := []struct {
		field string
		get   financials.Accessor
		band  band
	}{
		{"revenue", financials.Revenue, revenueSwing},
		{"owner_compensation", financials.OwnerCompensation, ownerSwing},
		{"total_assets", financials.TotalAssets, assetSwing},
	}
	for _, c := range money {
		a, b := c.get(prior), c.get(cur)
		if a <= 0 || math.Abs(a-b) < minAbsDifference {
			continue
		}
		pct := pctDiff(a, b)
		sev, ok := c.band.severity(pct)
		if !ok {
			continue
		}
		found = append(found, discrepancy(c.field, prior, cur, a, b, pct, sev, fmt.Sprintf(
			"%s changed %+.1f%% from %d (%s) to %d (%s)",
			c.field, (b-a)/a*100, prior.TaxYear, usd(a), cur.TaxYear, usd(b))))
	}

	if financials.Revenue(prior) > 0 && financials.Revenue(cur) > 0 {
		a, b := financials.GrossMarginPct(prior), financials.GrossMarginPct(cur)
		swing := math.Abs(b - a)
		if sev, ok := marginSwing.severity(swing); ok {
			found = append(found, model.Discrepancy{
				Field:             "gross_margin_pct",
				SourceA:           source(prior),
				ValueA:            math.Round(a*100) / 100,
				SourceB:           source(cur),
				ValueB:            math.Round(b*100) / 100,
				Difference:        math.Round(swing*100) / 100,
				PercentDifference: math.Round(swing*100) / 100,
				Severity:          sev,
				Message: fmt.Sprintf("gross margin moved %.1f percentage points from %d (%.1f%%) to %d (%.1f%%)",
					swing, prior.TaxYear, a, cur.TaxYear, b),
			})
		}
	}
	return found
}
