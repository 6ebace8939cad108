package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want DocumentType
	}{
		{"FORM_1120S", DocForm1120S},
		{"form 1120-s", DocForm1120S},
		{"1120", DocForm1120},
		{"Form 1065", DocForm1065},
		{"schedule c", DocScheduleC},
		{"Schedule K-1", DocScheduleK1},
		{"profit and loss", DocIncomeStatement},
		{"balance_sheet", DocBalanceSheet},
		{"", DocUnknown},
		{"W-2", DocUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseDocumentType(tt.in))
		})
	}
}

func TestDocumentType_Families(t *testing.T) {
	t.Parallel()

	assert.True(t, DocForm1120S.IsTaxReturn())
	assert.True(t, DocScheduleC.IsTaxReturn())
	assert.False(t, DocScheduleK1.IsTaxReturn())
	assert.False(t, DocIncomeStatement.IsTaxReturn())

	assert.True(t, DocIncomeStatement.IsFinancialStatement())
	assert.True(t, DocBalanceSheet.IsFinancialStatement())
	assert.False(t, DocForm1065.IsFinancialStatement())

	assert.True(t, DocForm1065.IsPassThroughReturn())
	assert.False(t, DocForm1120.IsPassThroughReturn())
}

func TestDocumentType_EntityType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, EntitySCorp, DocForm1120S.EntityType())
	assert.Equal(t, EntityCCorp, DocForm1120.EntityType())
	assert.Equal(t, EntityPartnership, DocForm1065.EntityType())
	assert.Equal(t, EntitySoleProp, DocScheduleC.EntityType())
	assert.Equal(t, EntityOther, DocIncomeStatement.EntityType())
}

func TestParseEntityType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, EntitySCorp, ParseEntityType("S-Corporation"))
	assert.Equal(t, EntitySCorp, ParseEntityType("s corp"))
	assert.Equal(t, EntityPartnership, ParseEntityType("Partnership"))
	assert.Equal(t, EntitySoleProp, ParseEntityType("Sole Proprietorship"))
	assert.Equal(t, EntityCCorp, ParseEntityType("C-Corp"))
	assert.Equal(t, EntityOther, ParseEntityType("trust"))
}

func TestParseConfidenceLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ConfidenceHigh, ParseConfidenceLevel("HIGH"))
	assert.Equal(t, ConfidenceMedium, ParseConfidenceLevel(" medium "))
	assert.Equal(t, ConfidenceLow, ParseConfidenceLevel("certain"))
	assert.Greater(t, ConfidenceHigh.Rank(), ConfidenceMedium.Rank())
	assert.Greater(t, ConfidenceMedium.Rank(), ConfidenceLow.Rank())
}

func TestCOGSDetail_Computed(t *testing.T) {
	t.Parallel()

	d := COGSDetail{BeginningInventory: 100, Purchases: 500, CostOfLabor: 200, OtherCosts: 50, EndingInventory: 150}
	assert.InDelta(t, 700.0, d.Computed(), 0.001)
	assert.False(t, d.IsEmpty())
	assert.True(t, COGSDetail{}.IsEmpty())
}

func TestCovidAdjustments_Total(t *testing.T) {
	t.Parallel()

	c := CovidAdjustments{PPPLoanForgiveness: 100, EIDLAdvances: 10, EmployeeRetentionCredit: 5, OtherRelief: 1000}
	assert.InDelta(t, 115.0, c.Total(), 0.001)
}

func TestStructuredFinancialData_CloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := StructuredFinancialData{
		ScheduleK:        &ScheduleK{Section179Deduction: 10},
		OwnerInfo:        &OwnerInfo{Distributions: 5},
		CovidAdjustments: &CovidAdjustments{PPPLoanForgiveness: 1},
		RedFlags:         []RedFlag{{Code: "A"}},
	}
	cp := orig.Clone()
	cp.ScheduleK.Section179Deduction = 99
	cp.OwnerInfo.Distributions = 99
	cp.CovidAdjustments.PPPLoanForgiveness = 99
	cp.RedFlags[0].Code = "B"

	assert.InDelta(t, 10.0, orig.ScheduleK.Section179Deduction, 0.001)
	assert.InDelta(t, 5.0, orig.OwnerInfo.Distributions, 0.001)
	assert.InDelta(t, 1.0, orig.CovidAdjustments.PPPLoanForgiveness, 0.001)
	assert.Equal(t, "A", orig.RedFlags[0].Code)
}

func TestStructuredFinancialData_MissingFieldsDecodeAsZero(t *testing.T) {
	t.Parallel()

	var d StructuredFinancialData
	require.NoError(t, json.Unmarshal([]byte(`{"income_statement":{"gross_receipts_sales":1000}}`), &d))
	assert.InDelta(t, 1000.0, d.IncomeStatement.GrossReceiptsSales, 0.001)
	assert.Zero(t, d.IncomeStatement.NetIncome)
	assert.True(t, d.BalanceSheet.IsEmpty())
	assert.Nil(t, d.ScheduleK)
}

func TestAggregateStatus(t *testing.T) {
	t.Parallel()

	docs := func(ss ...ExtractionStatus) []DocumentState {
		out := make([]DocumentState, len(ss))
		for i, s := range ss {
			out[i] = DocumentState{DocumentID: string(rune('a' + i)), Status: s}
		}
		return out
	}

	tests := []struct {
		name string
		docs []DocumentState
		want ExtractionStatus
	}{
		{"empty", nil, StatusNone},
		{"all completed", docs(StatusCompleted, StatusCompleted), StatusCompleted},
		{"one failed", docs(StatusCompleted, StatusFailed, StatusProcessing), StatusFailed},
		{"processing beats pending", docs(StatusPending, StatusProcessing), StatusProcessing},
		{"pending", docs(StatusCompleted, StatusPending), StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AggregateStatus(tt.docs))
		})
	}
}

func TestCrossDocValidationResult_Helpers(t *testing.T) {
	t.Parallel()

	r := CrossDocValidationResult{
		DocumentsCompared: []string{"a", "b"},
		Discrepancies:     []Discrepancy{{Severity: SeverityWarning}},
	}
	assert.True(t, r.HasSeverity(SeverityWarning))
	assert.False(t, r.HasSeverity(SeverityError))
	assert.True(t, r.Involves("b"))
	assert.False(t, r.Involves("c"))
}

func TestFinalExtractionOutput_Years(t *testing.T) {
	t.Parallel()

	o := FinalExtractionOutput{FinancialData: map[int]StructuredFinancialData{2022: {}, 2020: {}, 2021: {}}}
	assert.Equal(t, []int{2020, 2021, 2022}, o.Years())
}
