// Package export writes the merged year-indexed dataset of a report to an
// xlsx workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/pipeline"
)

// Sheet names.
const (
	SheetIncomeStatement = "Income Statement"
	SheetBalanceSheet    = "Balance Sheet"
	SheetSDE             = "SDE"
	SheetValidation      = "Validation"
)

type line struct {
	label string
	get   financials.Accessor
}

var incomeLines = []line{
	{"Gross receipts or sales", financials.Revenue},
	{"Returns and allowances", func(d *model.StructuredFinancialData) float64 { return d.IncomeStatement.ReturnsAllowances }},
	{"Cost of goods sold", financials.CostOfGoodsSold},
	{"Gross profit", financials.GrossProfit},
	{"Other income", func(d *model.StructuredFinancialData) float64 { return d.IncomeStatement.OtherIncome }},
	{"Total income", func(d *model.StructuredFinancialData) float64 { return d.IncomeStatement.TotalIncome }},
	{"Compensation of officers", func(d *model.StructuredFinancialData) float64 { return d.Expenses.CompensationOfOfficers }},
	{"Salaries and wages", func(d *model.StructuredFinancialData) float64 { return d.Expenses.SalariesWages }},
	{"Rents", func(d *model.StructuredFinancialData) float64 { return d.Expenses.Rents }},
	{"Interest", financials.Interest},
	{"Depreciation", func(d *model.StructuredFinancialData) float64 { return d.Expenses.Depreciation }},
	{"Amortization", financials.Amortization},
	{"Total deductions", func(d *model.StructuredFinancialData) float64 { return d.IncomeStatement.TotalDeductions }},
	{"Net income", financials.NetIncome},
}

var balanceLines = []line{
	{"Cash", func(d *model.StructuredFinancialData) float64 { return d.BalanceSheet.EndOfYear.Cash }},
	{"Accounts receivable", func(d *model.StructuredFinancialData) float64 { return d.BalanceSheet.EndOfYear.AccountsReceivable }},
	{"Inventory", func(d *model.StructuredFinancialData) float64 { return d.BalanceSheet.EndOfYear.Inventory }},
	{"Loans to shareholders", func(d *model.StructuredFinancialData) float64 { return d.BalanceSheet.EndOfYear.LoansToShareholders }},
	{"Total assets", financials.TotalAssets},
	{"Total liabilities", financials.TotalLiabilities},
	{"Total equity", financials.TotalEquity},
	{"Working capital", financials.WorkingCapital},
	{"Book value", financials.BookValue},
}

var sdeLines = []line{
	{"Net income", financials.NetIncome},
	{"Owner compensation", financials.OwnerCompensation},
	{"Depreciation add-back", financials.DepreciationAddBack},
	{"Amortization", financials.Amortization},
	{"Interest", financials.Interest},
	{"SDE", financials.SDE},
	{"EBITDA", financials.EBITDA},
	{"COVID relief", financials.CovidAdjustmentTotal},
	{"Normalized net income", financials.NormalizedNetIncome},
}

var validationHeader = []string{
	"Document", "Document type", "Tax year", "Confidence", "Recommendation", "Ready for valuation",
	"Rule", "Name", "Severity", "Passed", "Field", "Message",
}

// Build assembles the workbook. Each year's figures come from its primary
// document; the Validation sheet lists every document's results.
func Build(outputs ...*model.FinalExtractionOutput) (*xlsx.File, error) {
	years := financials.Years(pipeline.MergeByYear(outputs))
	f := xlsx.NewFile()

	for _, s := range []struct {
		name  string
		lines []line
	}{
		{SheetIncomeStatement, incomeLines},
		{SheetBalanceSheet, balanceLines},
		{SheetSDE, sdeLines},
	} {
		sheet, err := f.AddSheet(s.name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", s.name)
		}
		writeLines(sheet, years, s.lines)
	}

	sdeSheet := f.Sheet[SheetSDE]
	if sorted := years.Sorted(); len(sorted) > 0 {
		row := sdeSheet.AddRow()
		row.AddCell().SetString("Weighted SDE (recency)")
		row.AddCell().SetFloat(years.WeightedSDE(financials.RecencyWeights(sorted)))
	}

	sheet, err := f.AddSheet(SheetValidation)
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", SheetValidation)
	}
	writeValidation(sheet, outputs)
	return f, nil
}

// WriteWorkbook builds the workbook and saves it to path.
func WriteWorkbook(path string, outputs ...*model.FinalExtractionOutput) error {
	f, err := Build(outputs...)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, outputs ...*model.FinalExtractionOutput) error {
	f, err := Build(outputs...)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

func writeLines(sheet *xlsx.Sheet, years financials.Years, lines []line) {
	sorted := years.Sorted()

	header := sheet.AddRow()
	header.AddCell().SetString("Line item")
	for _, y := range sorted {
		header.AddCell().SetString(strconv.Itoa(y))
	}

	for _, l := range lines {
		row := sheet.AddRow()
		row.AddCell().SetString(l.label)
		for _, y := range sorted {
			row.AddCell().SetFloat(years.Get(y, l.get))
		}
	}
}

func writeValidation(sheet *xlsx.Sheet, outputs []*model.FinalExtractionOutput) {
	header := sheet.AddRow()
	for _, h := range validationHeader {
		header.AddCell().SetString(h)
	}

	for _, out := range outputs {
		if out == nil {
			continue
		}
		results := append([]model.ValidationResult(nil), out.Validation.Results...)
		sort.SliceStable(results, func(i, j int) bool {
			return severityRank(results[i].Severity) < severityRank(results[j].Severity)
		})

		prefix := []string{
			out.DocumentID,
			string(out.DocumentType),
			yearsLabel(out.Years()),
			strconv.Itoa(out.Confidence.Overall),
			string(out.Confidence.Recommendation),
			strconv.FormatBool(out.ReadyForValuation),
		}
		if len(results) == 0 {
			addStrings(sheet, prefix)
			continue
		}
		for _, r := range results {
			addStrings(sheet, append(append([]string(nil), prefix...),
				r.ID, r.Name, string(r.Severity), strconv.FormatBool(r.Passed), r.Field, r.Message))
		}
	}
}

func addStrings(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityError:
		return 0
	case model.SeverityWarning:
		return 1
	}
	return 2
}

func yearsLabel(years []int) string {
	switch len(years) {
	case 0:
		return ""
	case 1:
		return strconv.Itoa(years[0])
	}
	return fmt.Sprintf("%d-%d", years[0], years[len(years)-1])
}
