package financials

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/finextract/internal/model"
)

func scenarioData(entity model.EntityType) model.StructuredFinancialData {
	return model.StructuredFinancialData{
		CompanyInfo: model.CompanyInfo{EntityType: entity},
		IncomeStatement: model.IncomeStatement{
			GrossReceiptsSales: 1_500_000,
			NetIncome:          200_000,
		},
		Expenses: model.Expenses{
			CompensationOfOfficers: 150_000,
			Depreciation:           25_000,
			Interest:               8_000,
			Amortization:           2_000,
		},
		ScheduleK:          &model.ScheduleK{Section179Deduction: 15_000},
		GuaranteedPayments: 60_000,
	}
}

func TestOwnerCompensation_EntityDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entity model.EntityType
		want   float64
	}{
		{model.EntitySCorp, 150_000},
		{model.EntityPartnership, 60_000},
		{model.EntitySoleProp, 200_000},
		{model.EntityCCorp, 150_000},
		{model.EntityOther, 150_000},
		{"", 150_000},
	}

	for _, tt := range tests {
		t.Run(string(tt.entity), func(t *testing.T) {
			t.Parallel()
			d := scenarioData(tt.entity)
			assert.InDelta(t, tt.want, OwnerCompensation(&d), 0.0001)
		})
	}
}

func TestOwnerCompensation_IgnoresOtherFields(t *testing.T) {
	t.Parallel()

	// A partnership with officer compensation still reads guaranteed payments.
	d := scenarioData(model.EntityPartnership)
	d.Expenses.CompensationOfOfficers = 999_999
	assert.InDelta(t, 60_000.0, OwnerCompensation(&d), 0.0001)
}

func TestSDE_Scenario(t *testing.T) {
	t.Parallel()

	d := scenarioData(model.EntitySCorp)
	assert.InDelta(t, 40_000.0, DepreciationAddBack(&d), 0.0001)
	assert.InDelta(t, 200_000.0+150_000+25_000+15_000+2_000+8_000, SDE(&d), 0.0001)
}

func TestSDE_ExactSum(t *testing.T) {
	t.Parallel()

	d := model.StructuredFinancialData{
		CompanyInfo:     model.CompanyInfo{EntityType: model.EntitySCorp},
		IncomeStatement: model.IncomeStatement{NetIncome: 100.25},
		Expenses:        model.Expenses{CompensationOfOfficers: 200.5, Depreciation: 300.75, Amortization: 400.125, Interest: 500.5},
		ScheduleK:       &model.ScheduleK{Section179Deduction: 600.25},
	}
	assert.Equal(t, 2102.375, SDE(&d))
}

func TestAccessors_NilAndEmpty(t *testing.T) {
	t.Parallel()

	var empty model.StructuredFinancialData
	for name, fn := range map[string]Accessor{
		"revenue":      Revenue,
		"sde":          SDE,
		"ebitda":       EBITDA,
		"book_value":   BookValue,
		"normalized":   NormalizedNetIncome,
		"distribution": Distributions,
		"owner_comp":   OwnerCompensation,
		"section179":   Section179,
		"gross_margin": GrossMarginPct,
	} {
		assert.Zero(t, fn(nil), name)
		assert.Zero(t, fn(&empty), name)
	}
}

func TestBookValue_ZeroBalanceSheet(t *testing.T) {
	t.Parallel()

	d := model.StructuredFinancialData{}
	assert.Zero(t, BookValue(&d))

	d.BalanceSheet.EndOfYear = model.BalanceSnapshot{TotalAssets: 500_000, TotalLiabilities: 200_000, TotalEquity: 300_000}
	assert.InDelta(t, 300_000.0, BookValue(&d), 0.0001)
}

func TestNormalizedNetIncome(t *testing.T) {
	t.Parallel()

	d := scenarioData(model.EntitySCorp)
	d.CovidAdjustments = &model.CovidAdjustments{
		PPPLoanForgiveness:      50_000,
		EIDLAdvances:            10_000,
		EmployeeRetentionCredit: 20_000,
		OtherRelief:             5_000,
	}
	assert.InDelta(t, 80_000.0, CovidAdjustmentTotal(&d), 0.0001)
	assert.InDelta(t, 120_000.0, NormalizedNetIncome(&d), 0.0001)
}

func TestEBITDA(t *testing.T) {
	t.Parallel()

	d := scenarioData(model.EntityCCorp)
	d.IncomeStatement.IncomeTax = 30_000
	assert.InDelta(t, 200_000.0+8_000+30_000+40_000+2_000, EBITDA(&d), 0.0001)

	d.IncomeStatement.IncomeTax = 0
	d.ScheduleM1 = &model.ScheduleM1{FederalIncomeTax: 12_000}
	assert.InDelta(t, 12_000.0, IncomeTax(&d), 0.0001)
}

func TestDistributions_Fallback(t *testing.T) {
	t.Parallel()

	d := model.StructuredFinancialData{OwnerInfo: &model.OwnerInfo{Distributions: 7_000}}
	assert.InDelta(t, 7_000.0, Distributions(&d), 0.0001)

	d.ScheduleK = &model.ScheduleK{Distributions: 9_000}
	assert.InDelta(t, 9_000.0, Distributions(&d), 0.0001)
}

func TestGrossProfit_Derived(t *testing.T) {
	t.Parallel()

	d := model.StructuredFinancialData{IncomeStatement: model.IncomeStatement{
		GrossReceiptsSales: 1_000, ReturnsAllowances: 100, CostOfGoodsSold: 400,
	}}
	assert.InDelta(t, 500.0, GrossProfit(&d), 0.0001)
	assert.InDelta(t, 500.0/900*100, GrossMarginPct(&d), 0.0001)
}

func TestYears_MissingYearIsZero(t *testing.T) {
	t.Parallel()

	y := Years{2021: scenarioData(model.EntitySCorp)}
	assert.Zero(t, y.Get(2019, SDE))
	assert.InDelta(t, 1_500_000.0, y.Get(2021, Revenue), 0.0001)

	var nilYears Years
	assert.Zero(t, nilYears.Get(2021, SDE))
	assert.Nil(t, FromOutput(nil))
}

func TestYears_WeightedSDE(t *testing.T) {
	t.Parallel()

	mk := func(ni float64) model.StructuredFinancialData {
		return model.StructuredFinancialData{
			CompanyInfo:     model.CompanyInfo{EntityType: model.EntityCCorp},
			IncomeStatement: model.IncomeStatement{NetIncome: ni},
		}
	}
	y := Years{2020: mk(100), 2021: mk(200), 2022: mk(300)}

	assert.Equal(t, []int{2020, 2021, 2022}, y.Sorted())
	assert.Equal(t, map[int]float64{2020: 100, 2021: 200, 2022: 300}, y.SDEByYear())

	weights := RecencyWeights(y.Sorted())
	assert.Equal(t, map[int]float64{2020: 1, 2021: 2, 2022: 3}, weights)
	assert.InDelta(t, (100.0*1+200*2+300*3)/6, y.WeightedSDE(weights), 0.0001)

	// Weights for missing years are ignored.
	assert.InDelta(t, 300.0, y.WeightedSDE(map[int]float64{2022: 1, 2030: 5}), 0.0001)
	assert.Zero(t, y.WeightedSDE(map[int]float64{2030: 1}))
	assert.Zero(t, y.WeightedSDE(nil))
}
