// Package financials provides entity-aware accessors over structured
// financial data. Every accessor is pure and returns zero for missing data.
package financials

import (
	"sort"

	"github.com/sells-group/finextract/internal/model"
)

// Accessor reads one derived value from a year's data.
type Accessor func(d *model.StructuredFinancialData) float64

// ownerCompensation maps entity type to the field that represents what the
// owner was paid. Entity types without an entry use officer compensation.
var ownerCompensation = map[model.EntityType]Accessor{
	model.EntitySCorp:       func(d *model.StructuredFinancialData) float64 { return d.Expenses.CompensationOfOfficers },
	model.EntityPartnership: func(d *model.StructuredFinancialData) float64 { return d.GuaranteedPayments },
	model.EntitySoleProp:    func(d *model.StructuredFinancialData) float64 { return d.IncomeStatement.NetIncome },
	model.EntityCCorp:       func(d *model.StructuredFinancialData) float64 { return d.Expenses.CompensationOfOfficers },
}

// OwnerCompensation returns owner compensation for the data's entity type.
func OwnerCompensation(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	if fn, ok := ownerCompensation[d.CompanyInfo.EntityType]; ok {
		return fn(d)
	}
	return d.Expenses.CompensationOfOfficers
}

// Revenue returns gross receipts net of returns and allowances.
func Revenue(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.IncomeStatement.GrossReceiptsSales - d.IncomeStatement.ReturnsAllowances
}

// NetIncome returns reported net income.
func NetIncome(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.IncomeStatement.NetIncome
}

// CostOfGoodsSold returns reported COGS.
func CostOfGoodsSold(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.IncomeStatement.CostOfGoodsSold
}

// GrossProfit returns reported gross profit, or revenue less COGS when not reported.
func GrossProfit(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	if d.IncomeStatement.GrossProfit != 0 {
		return d.IncomeStatement.GrossProfit
	}
	return Revenue(d) - d.IncomeStatement.CostOfGoodsSold
}

// GrossMarginPct returns gross profit as a percentage of revenue.
func GrossMarginPct(d *model.StructuredFinancialData) float64 {
	rev := Revenue(d)
	if rev == 0 {
		return 0
	}
	return GrossProfit(d) / rev * 100
}

// Section179 returns the Section 179 deduction from Schedule K.
func Section179(d *model.StructuredFinancialData) float64 {
	if d == nil || d.ScheduleK == nil {
		return 0
	}
	return d.ScheduleK.Section179Deduction
}

// DepreciationAddBack returns depreciation plus the Section 179 deduction.
func DepreciationAddBack(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.Expenses.Depreciation + Section179(d)
}

// Amortization returns amortization expense.
func Amortization(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.Expenses.Amortization
}

// Interest returns interest expense.
func Interest(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.Expenses.Interest
}

// IncomeTax returns income tax expense, preferring the income statement line.
func IncomeTax(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	if d.IncomeStatement.IncomeTax != 0 {
		return d.IncomeStatement.IncomeTax
	}
	if d.ScheduleM1 != nil {
		return d.ScheduleM1.FederalIncomeTax
	}
	return 0
}

// Distributions returns owner distributions from Schedule K, falling back to owner info.
func Distributions(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	if d.ScheduleK != nil && d.ScheduleK.Distributions != 0 {
		return d.ScheduleK.Distributions
	}
	if d.OwnerInfo != nil {
		return d.OwnerInfo.Distributions
	}
	return 0
}

// SDE returns seller's discretionary earnings:
// net income + owner compensation + depreciation (incl. Section 179) + amortization + interest.
func SDE(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return NetIncome(d) + OwnerCompensation(d) + DepreciationAddBack(d) + Amortization(d) + Interest(d)
}

// EBITDA returns net income plus interest, income tax, depreciation and amortization.
func EBITDA(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return NetIncome(d) + Interest(d) + IncomeTax(d) + DepreciationAddBack(d) + Amortization(d)
}

// TotalAssets returns end-of-year total assets.
func TotalAssets(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.BalanceSheet.EndOfYear.TotalAssets
}

// TotalLiabilities returns end-of-year total liabilities.
func TotalLiabilities(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.BalanceSheet.EndOfYear.TotalLiabilities
}

// TotalEquity returns end-of-year total equity.
func TotalEquity(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	return d.BalanceSheet.EndOfYear.TotalEquity
}

// BookValue returns end-of-year total assets less total liabilities.
func BookValue(d *model.StructuredFinancialData) float64 {
	return TotalAssets(d) - TotalLiabilities(d)
}

// WorkingCapital returns cash, receivables and inventory less payables at year end.
func WorkingCapital(d *model.StructuredFinancialData) float64 {
	if d == nil {
		return 0
	}
	eoy := d.BalanceSheet.EndOfYear
	return eoy.Cash + eoy.AccountsReceivable + eoy.Inventory - eoy.AccountsPayable
}

// CovidAdjustmentTotal returns PPP forgiveness plus EIDL advances plus ERC.
func CovidAdjustmentTotal(d *model.StructuredFinancialData) float64 {
	if d == nil || d.CovidAdjustments == nil {
		return 0
	}
	return d.CovidAdjustments.Total()
}

// NormalizedNetIncome returns net income less COVID relief recognized as income.
func NormalizedNetIncome(d *model.StructuredFinancialData) float64 {
	return NetIncome(d) - CovidAdjustmentTotal(d)
}

// Years is a year-indexed set of financial data.
type Years map[int]model.StructuredFinancialData

// FromOutput returns the year-indexed data of a final output.
func FromOutput(o *model.FinalExtractionOutput) Years {
	if o == nil {
		return nil
	}
	return Years(o.FinancialData)
}

// Get applies fn to the given year, returning zero if the year is missing.
func (y Years) Get(year int, fn Accessor) float64 {
	d, ok := y[year]
	if !ok {
		return 0
	}
	return fn(&d)
}

// Sorted returns the years present in ascending order.
func (y Years) Sorted() []int {
	out := make([]int, 0, len(y))
	for yr := range y {
		out = append(out, yr)
	}
	sort.Ints(out)
	return out
}

// Series evaluates fn once per year.
func (y Years) Series(fn Accessor) map[int]float64 {
	out := make(map[int]float64, len(y))
	for yr, d := range y {
		out[yr] = fn(&d)
	}
	return out
}

// SDEByYear computes SDE once per available year.
func (y Years) SDEByYear() map[int]float64 {
	return y.Series(SDE)
}

// WeightedSDE returns the weight-averaged SDE over years that have both data
// and a positive weight. It returns zero when no year qualifies.
func (y Years) WeightedSDE(weights map[int]float64) float64 {
	return WeightedAverage(y.SDEByYear(), weights)
}

// WeightedAverage averages values by weight over keys present in both maps.
func WeightedAverage(values map[int]float64, weights map[int]float64) float64 {
	var sum, total float64
	for yr, w := range weights {
		v, ok := values[yr]
		if !ok || w <= 0 {
			continue
		}
		sum += v * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// RecencyWeights assigns weight n to the most recent of n years down to 1 for the oldest.
func RecencyWeights(years []int) map[int]float64 {
	sorted := append([]int(nil), years...)
	sort.Ints(sorted)
	out := make(map[int]float64, len(sorted))
	for i, yr := range sorted {
		out[yr] = float64(i + 1)
	}
	return out
}
