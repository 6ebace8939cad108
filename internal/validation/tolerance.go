package validation

import (
	"math"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
)

// Reconciliation tolerances, each max(pct of base, absolute floor).
const (
	balancePct   = 0.01
	balanceFloor = 100.0

	grossProfitPct   = 0.01
	grossProfitFloor = 100.0

	cogsPct   = 0.02
	cogsFloor = 500.0
)

// Tolerance returns max(pct × |base|, floor).
func Tolerance(base, pct, floor float64) float64 {
	return math.Max(math.Abs(base)*pct, floor)
}

// Exceeds reports whether |diff| is larger than Tolerance(base, pct, floor).
func Exceeds(diff, base, pct, floor float64) bool {
	return math.Abs(diff) > Tolerance(base, pct, floor)
}

// BalanceSheetImbalance compares end-of-year assets with liabilities plus
// equity. A balance sheet with all three totals at zero is exempt.
func BalanceSheetImbalance(d *model.StructuredFinancialData) (diff float64, imbalanced bool) {
	if d == nil {
		return 0, false
	}
	eoy := d.BalanceSheet.EndOfYear
	if eoy.TotalAssets == 0 && eoy.TotalLiabilities == 0 && eoy.TotalEquity == 0 {
		return 0, false
	}
	diff = eoy.TotalAssets - (eoy.TotalLiabilities + eoy.TotalEquity)
	return diff, Exceeds(diff, eoy.TotalAssets, balancePct, balanceFloor)
}

// GrossProfitMismatch compares reported gross profit with revenue less COGS.
// Documents without a reported gross profit are skipped.
func GrossProfitMismatch(d *model.StructuredFinancialData) (diff float64, mismatched bool) {
	if d == nil || d.IncomeStatement.GrossProfit == 0 {
		return 0, false
	}
	revenue := financials.Revenue(d)
	expected := revenue - d.IncomeStatement.CostOfGoodsSold
	diff = d.IncomeStatement.GrossProfit - expected
	return diff, Exceeds(diff, revenue, grossProfitPct, grossProfitFloor)
}

// COGSMismatch compares the COGS build-up with reported COGS. Documents
// without detail or without a COGS line are skipped.
func COGSMismatch(d *model.StructuredFinancialData) (diff float64, mismatched bool) {
	if d == nil || d.IncomeStatement.COGSDetail.IsEmpty() || d.IncomeStatement.CostOfGoodsSold == 0 {
		return 0, false
	}
	cogs := d.IncomeStatement.CostOfGoodsSold
	diff = d.IncomeStatement.COGSDetail.Computed() - cogs
	return diff, Exceeds(diff, cogs, cogsPct, cogsFloor)
}

func pct(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
