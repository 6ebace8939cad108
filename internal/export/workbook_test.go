package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/finextract/internal/model"
)

func output(id string, dt model.DocumentType, year int, revenue, net float64, results ...model.ValidationResult) *model.FinalExtractionOutput {
	return &model.FinalExtractionOutput{
		DocumentID:   id,
		DocumentType: dt,
		FinancialData: map[int]model.StructuredFinancialData{
			year: {
				DocumentID:   id,
				DocumentType: dt,
				TaxYear:      year,
				CompanyInfo:  model.CompanyInfo{EntityType: dt.EntityType()},
				IncomeStatement: model.IncomeStatement{
					GrossReceiptsSales: revenue,
					NetIncome:          net,
				},
				Expenses: model.Expenses{CompensationOfOfficers: 150000, Depreciation: 25000},
			},
		},
		Validation: model.ValidationReport{Results: results},
		Confidence: model.ConfidenceScore{Overall: 82, Recommendation: model.RecommendReady},
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func findRow(t *testing.T, sheet *xlsx.Sheet, label string) *xlsx.Row {
	t.Helper()
	for _, row := range sheet.Rows {
		if len(row.Cells) > 0 && row.Cells[0].String() == label {
			return row
		}
	}
	t.Fatalf("row %q not found in sheet %s", label, sheet.Name)
	return nil
}

func cellFloat(t *testing.T, row *xlsx.Row, i int) float64 {
	t.Helper()
	require.Greater(t, len(row.Cells), i)
	v, err := row.Cells[i].Float()
	require.NoError(t, err)
	return v
}

func TestWriteWorkbook(t *testing.T) {
	t.Parallel()

	warn := model.ValidationResult{ID: "GM001", Name: "Gross margin out of range", Severity: model.SeverityWarning, Field: "income_statement.gross_profit", Message: "gross margin 92.0% is unusually high"}
	blocker := model.ValidationResult{ID: "BS001", Name: "Balance sheet equation", Severity: model.SeverityError, Field: "balance_sheet.end_of_year.total_assets", Message: "total assets do not balance"}

	outputs := []*model.FinalExtractionOutput{
		output("ret-2021", model.DocForm1120S, 2021, 900000, 180000, warn, blocker),
		output("ret-2022", model.DocForm1120S, 2022, 1250000, 200000),
		output("pl-2022", model.DocIncomeStatement, 2022, 1240000, 195000),
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteWorkbook(path, outputs...))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	names := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{SheetIncomeStatement, SheetBalanceSheet, SheetSDE, SheetValidation}, names)

	income := f.Sheet[SheetIncomeStatement]
	assert.Equal(t, []string{"Line item", "2021", "2022"}, rowToStrings(income.Rows[0]))
	revenue := findRow(t, income, "Gross receipts or sales")
	assert.InDelta(t, 900000, cellFloat(t, revenue, 1), 0.01)
	assert.InDelta(t, 1250000, cellFloat(t, revenue, 2), 0.01, "tax return wins over the income statement")

	sde := f.Sheet[SheetSDE]
	row := findRow(t, sde, "SDE")
	assert.InDelta(t, 180000+150000+25000, cellFloat(t, row, 1), 0.01)
	assert.InDelta(t, 200000+150000+25000, cellFloat(t, row, 2), 0.01)
	weighted := findRow(t, sde, "Weighted SDE (recency)")
	assert.InDelta(t, (355000*1+375000*2)/3.0, cellFloat(t, weighted, 1), 0.01)

	validation := f.Sheet[SheetValidation]
	assert.Equal(t, validationHeader, rowToStrings(validation.Rows[0]))
	require.Len(t, validation.Rows, 5)
	first := rowToStrings(validation.Rows[1])
	assert.Equal(t, "ret-2021", first[0])
	assert.Equal(t, "BS001", first[6], "errors sort before warnings")
	assert.Equal(t, "GM001", rowToStrings(validation.Rows[2])[6])
	assert.Equal(t, []string{"ret-2022", "FORM_1120S", "2022", "82", "ready", "false"}, rowToStrings(validation.Rows[3])[:6])
}

func TestWrite_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf))
	assert.NotZero(t, buf.Len())

	f, err := Build()
	require.NoError(t, err)
	require.Len(t, f.Sheets, 4)
	assert.Len(t, f.Sheet[SheetIncomeStatement].Rows, len(incomeLines)+1)
	assert.Len(t, f.Sheet[SheetSDE].Rows, len(sdeLines)+1)
}

func TestYearsLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", yearsLabel(nil))
	assert.Equal(t, "2022", yearsLabel([]int{2022}))
	assert.Equal(t, "2020-2022", yearsLabel([]int{2020, 2021, 2022}))
}
