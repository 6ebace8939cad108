package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/finextract/internal/covid"
	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/textnorm"
)

// Rule thresholds.
const (
	otherIncomeMaxPct     = 10.0
	otherDeductionsMaxPct = 20.0
	officerCompMinPct     = 5.0
	officerCompMaxPct     = 50.0
	m1DivergencePct       = 0.05
	m1DivergenceFloor     = 10_000.0
	distributionsMaxRatio = 1.5
	grossMarginMaxPct     = 95.0
	relatedPartyMinHits   = 2
	revenueSwingPct       = 30.0
)

// finding is what a detector reports when its rule triggers.
type finding struct {
	field   string
	message string
}

type detector func(d *model.StructuredFinancialData, rawText string) *finding

func found(field, format string, args ...any) *finding {
	return &finding{field: field, message: fmt.Sprintf(format, args...)}
}

func newRule(id, name string, cat Category, sev model.Severity, detect detector) Rule {
	r := Rule{ID: id, Name: name, Category: cat, Severity: sev}
	r.Check = func(d *model.StructuredFinancialData, rawText string) *model.ValidationResult {
		f := detect(d, rawText)
		if f == nil {
			return nil
		}
		return r.result(f.field, "%s", f.message)
	}
	return r
}

// DefaultRules returns a fresh copy of the standard rule list.
func DefaultRules() []Rule {
	return []Rule{
		newRule("BS001", "Balance sheet equation", CategoryBalanceSheet, model.SeverityError, checkBalanceSheet),
		newRule("BS002", "Loans to shareholders", CategoryBalanceSheet, model.SeverityWarning, checkLoansToShareholders),
		newRule("BS003", "Negative retained earnings", CategoryBalanceSheet, model.SeverityWarning, checkRetainedEarnings),
		newRule("IS001", "Gross profit reconciliation", CategoryIncomeStatement, model.SeverityError, checkGrossProfit),
		newRule("IS002", "Non-positive revenue", CategoryIncomeStatement, model.SeverityError, checkRevenue),
		newRule("IS003", "COGS detail reconciliation", CategoryIncomeStatement, model.SeverityWarning, checkCOGSDetail),
		newRule("IS004", "Elevated other income", CategoryIncomeStatement, model.SeverityWarning, checkOtherIncome),
		newRule("IS005", "Elevated other deductions", CategoryIncomeStatement, model.SeverityWarning, checkOtherDeductions),
		newRule("SDE001", "Officer compensation ratio", CategorySDE, model.SeverityWarning, checkOfficerComp),
		newRule("SDE002", "Section 179 add-back", CategorySDE, model.SeverityInfo, checkSection179),
		newRule("SDE003", "Guaranteed payments add-back", CategorySDE, model.SeverityInfo, checkGuaranteedPayments),
		newRule("SDE004", "Capital gains adjustment", CategorySDE, model.SeverityInfo, checkCapitalGains),
		newRule("M1001", "Book/tax income divergence", CategoryScheduleM1, model.SeverityWarning, checkScheduleM1),
		newRule("DIST001", "Distributions exceed net income", CategoryDistributions, model.SeverityWarning, checkDistributions),
		newRule("COVID001", "COVID relief present", CategoryCovid, model.SeverityWarning, checkCovid),
		newRule("GM001", "Gross margin out of range", CategoryMargin, model.SeverityWarning, checkGrossMargin),
		newRule("RP001", "Related-party indicators", CategoryRelatedParty, model.SeverityWarning, checkRelatedParty),
		newRule("YOY001", "Revenue swing", CategoryYearOverYear, model.SeverityWarning, checkRevenueSwing),
	}
}

func checkBalanceSheet(d *model.StructuredFinancialData, _ string) *finding {
	diff, imbalanced := BalanceSheetImbalance(d)
	if !imbalanced {
		return nil
	}
	eoy := d.BalanceSheet.EndOfYear
	return found("balance_sheet.end_of_year.total_assets",
		"total assets %s do not equal liabilities %s plus equity %s (difference %s)",
		financials.FormatUSD(eoy.TotalAssets), financials.FormatUSD(eoy.TotalLiabilities),
		financials.FormatUSD(eoy.TotalEquity), financials.FormatUSD(diff))
}

func checkLoansToShareholders(d *model.StructuredFinancialData, _ string) *finding {
	loans := d.BalanceSheet.EndOfYear.LoansToShareholders
	if d.OwnerInfo != nil {
		loans = math.Max(loans, d.OwnerInfo.LoansToShareholders)
	}
	if loans <= 0 {
		return nil
	}
	return found("balance_sheet.end_of_year.loans_to_shareholders",
		"loans to shareholders of %s may be disguised distributions", financials.FormatUSD(loans))
}

func checkRetainedEarnings(d *model.StructuredFinancialData, _ string) *finding {
	re := d.BalanceSheet.EndOfYear.RetainedEarnings
	if re >= 0 {
		return nil
	}
	return found("balance_sheet.end_of_year.retained_earnings",
		"retained earnings are negative (%s)", financials.FormatUSD(re))
}

func checkGrossProfit(d *model.StructuredFinancialData, _ string) *finding {
	diff, mismatched := GrossProfitMismatch(d)
	if !mismatched {
		return nil
	}
	return found("income_statement.gross_profit",
		"gross profit %s does not equal revenue less COGS %s (difference %s)",
		financials.FormatUSD(d.IncomeStatement.GrossProfit),
		financials.FormatUSD(financials.Revenue(d)-d.IncomeStatement.CostOfGoodsSold),
		financials.FormatUSD(diff))
}

// checkRevenue skips documents that never carry revenue.
func checkRevenue(d *model.StructuredFinancialData, _ string) *finding {
	if d.DocumentType == model.DocBalanceSheet || d.DocumentType == model.DocScheduleK1 {
		return nil
	}
	rev := financials.Revenue(d)
	if rev > 0 {
		return nil
	}
	return found("income_statement.gross_receipts_sales",
		"revenue is %s; valuation requires positive revenue", financials.FormatUSD(rev))
}

func checkCOGSDetail(d *model.StructuredFinancialData, _ string) *finding {
	diff, mismatched := COGSMismatch(d)
	if !mismatched {
		return nil
	}
	return found("income_statement.cogs_detail",
		"COGS detail totals %s but COGS is %s (difference %s)",
		financials.FormatUSD(d.IncomeStatement.COGSDetail.Computed()),
		financials.FormatUSD(d.IncomeStatement.CostOfGoodsSold), financials.FormatUSD(diff))
}

func checkOtherIncome(d *model.StructuredFinancialData, _ string) *finding {
	rev := financials.Revenue(d)
	if rev <= 0 {
		return nil
	}
	share := pct(d.IncomeStatement.OtherIncome, rev)
	if share <= otherIncomeMaxPct {
		return nil
	}
	return found("income_statement.other_income",
		"other income %s is %.1f%% of revenue; confirm it is recurring",
		financials.FormatUSD(d.IncomeStatement.OtherIncome), share)
}

func checkOtherDeductions(d *model.StructuredFinancialData, _ string) *finding {
	rev := financials.Revenue(d)
	if rev <= 0 {
		return nil
	}
	share := pct(d.Expenses.OtherDeductions, rev)
	if share <= otherDeductionsMaxPct {
		return nil
	}
	return found("expenses.other_deductions",
		"other deductions %s are %.1f%% of revenue; review the supporting statement for add-backs",
		financials.FormatUSD(d.Expenses.OtherDeductions), share)
}

func checkOfficerComp(d *model.StructuredFinancialData, _ string) *finding {
	rev := financials.Revenue(d)
	comp := financials.OwnerCompensation(d)
	if rev <= 0 || comp <= 0 {
		return nil
	}
	share := pct(comp, rev)
	if share >= officerCompMinPct && share <= officerCompMaxPct {
		return nil
	}
	return found("expenses.compensation_of_officers",
		"owner compensation %s is %.1f%% of revenue, outside the expected %.0f-%.0f%% range",
		financials.FormatUSD(comp), share, officerCompMinPct, officerCompMaxPct)
}

func checkSection179(d *model.StructuredFinancialData, _ string) *finding {
	amt := financials.Section179(d)
	if amt <= 0 {
		return nil
	}
	return found("schedule_k.section_179_deduction",
		"Section 179 deduction of %s is an SDE add-back", financials.FormatUSD(amt))
}

func checkGuaranteedPayments(d *model.StructuredFinancialData, _ string) *finding {
	if d.GuaranteedPayments <= 0 {
		return nil
	}
	return found("guaranteed_payments",
		"guaranteed payments of %s are owner compensation and an SDE add-back",
		financials.FormatUSD(d.GuaranteedPayments))
}

func checkCapitalGains(d *model.StructuredFinancialData, _ string) *finding {
	gains := d.IncomeStatement.CapitalGains
	if d.ScheduleK != nil {
		gains = math.Max(gains, d.ScheduleK.NetLongTermCapitalGain+d.ScheduleK.NetSection1231Gain)
	}
	if gains <= 0 {
		return nil
	}
	return found("income_statement.capital_gains",
		"capital gains of %s are non-operating and should be removed from normalized earnings",
		financials.FormatUSD(gains))
}

func checkScheduleM1(d *model.StructuredFinancialData, _ string) *finding {
	if d.ScheduleM1 == nil {
		return nil
	}
	book, tax := d.ScheduleM1.NetIncomePerBooks, d.ScheduleM1.IncomePerReturn
	diff := math.Abs(book - tax)
	rev := financials.Revenue(d)
	if diff <= m1DivergenceFloor || diff <= math.Abs(rev)*m1DivergencePct {
		return nil
	}
	return found("schedule_m1",
		"book income %s and tax income %s differ by %s",
		financials.FormatUSD(book), financials.FormatUSD(tax), financials.FormatUSD(diff))
}

func checkDistributions(d *model.StructuredFinancialData, _ string) *finding {
	dist := financials.Distributions(d)
	if dist <= 0 {
		return nil
	}
	ni := financials.NetIncome(d)
	switch {
	case ni <= 0:
		return found("schedule_k.distributions",
			"distributions of %s taken despite net income of %s",
			financials.FormatUSD(dist), financials.FormatUSD(ni))
	case dist > ni*distributionsMaxRatio:
		return found("schedule_k.distributions",
			"distributions of %s exceed %.1fx net income of %s",
			financials.FormatUSD(dist), distributionsMaxRatio, financials.FormatUSD(ni))
	}
	return nil
}

func checkCovid(d *model.StructuredFinancialData, rawText string) *finding {
	if d.CovidAdjustments != nil {
		total := d.CovidAdjustments.Total() + d.CovidAdjustments.OtherRelief
		if total > 0 {
			return found("covid_adjustments",
				"COVID relief of %s recognized; exclude from normalized earnings", financials.FormatUSD(total))
		}
	}
	mentions := covid.Mentions(rawText)
	if len(mentions) == 0 {
		return nil
	}
	names := make([]string, len(mentions))
	for i, m := range mentions {
		names[i] = string(m)
	}
	return found("covid_adjustments",
		"COVID relief referenced (%s); confirm amounts before normalizing", strings.Join(names, ", "))
}

// checkGrossMargin only applies to documents that report COGS.
func checkGrossMargin(d *model.StructuredFinancialData, _ string) *finding {
	if financials.Revenue(d) <= 0 || d.IncomeStatement.CostOfGoodsSold <= 0 {
		return nil
	}
	margin := financials.GrossMarginPct(d)
	if margin >= 0 && margin <= grossMarginMaxPct {
		return nil
	}
	return found("income_statement.gross_profit", "gross margin of %.1f%% is outside 0-95%%", margin)
}

var relatedPartyTerms = []string{
	"related party", "related-party", "due from affiliate", "due to affiliate",
	"due from officer", "due to officer", "intercompany", "management fee",
}

func checkRelatedParty(d *model.StructuredFinancialData, rawText string) *finding {
	var hits []string
	eoy := d.BalanceSheet.EndOfYear
	if eoy.LoansToShareholders > 0 {
		hits = append(hits, "loans to shareholders")
	}
	if eoy.LoansFromShareholders > 0 {
		hits = append(hits, "loans from shareholders")
	}
	text := textnorm.Fold(rawText)
	for _, term := range relatedPartyTerms {
		if strings.Contains(text, term) {
			hits = append(hits, fmt.Sprintf("%q in text", term))
		}
	}
	if len(hits) < relatedPartyMinHits {
		return nil
	}
	return found("", "related-party activity indicated by %s", strings.Join(hits, ", "))
}

func checkRevenueSwing(d *model.StructuredFinancialData, _ string) *finding {
	prior := d.IncomeStatement.PriorYearGrossReceipts
	if prior <= 0 {
		return nil
	}
	rev := financials.Revenue(d)
	change := pct(rev-prior, prior)
	if math.Abs(change) <= revenueSwingPct {
		return nil
	}
	return found("income_statement.gross_receipts_sales",
		"revenue changed %+.1f%% from %s to %s", change, financials.FormatUSD(prior), financials.FormatUSD(rev))
}
