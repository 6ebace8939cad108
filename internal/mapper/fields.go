package mapper

import (
	"regexp"

	"github.com/sells-group/finextract/internal/model"
)

// amountExpr matches a money value: a dollar sign, thousands separators or
// at least five digits, optionally wrapped in parentheses. Line numbers and
// years do not qualify.
const amountExpr = `(\(?(?:\$\s*\d[\d,]*(?:\.\d{1,2})?|\b\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?\b|\b\d{5,}(?:\.\d{1,2})?\b)\)?)`

// onLine builds a pattern that finds the first amount after label on the
// same line.
func onLine(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + label + `[^\n]*?` + amountExpr)
}

// adjacent builds a pattern for short labels that must be directly followed
// by their amount, such as "cash" or "inventory".
func adjacent(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + label + `\b[ \t:.]*` + amountExpr)
}

// fieldRule maps one StructuredFinancialData field from text and table rows.
type fieldRule struct {
	name string
	// signed fields keep parenthesized values negative; all others store
	// the absolute value.
	signed bool
	text   []*regexp.Regexp
	labels []string
	// exclude rejects table labels that contain a matching label but name a
	// different line, such as "interest income" for interest expense.
	exclude []string
	// skipLines rejects text matches on lines containing any of these terms.
	skipLines []string
	field     func(d *model.StructuredFinancialData) *float64
}

func scheduleK(d *model.StructuredFinancialData) *model.ScheduleK {
	if d.ScheduleK == nil {
		d.ScheduleK = &model.ScheduleK{}
	}
	return d.ScheduleK
}

func scheduleM1(d *model.StructuredFinancialData) *model.ScheduleM1 {
	if d.ScheduleM1 == nil {
		d.ScheduleM1 = &model.ScheduleM1{}
	}
	return d.ScheduleM1
}

func ownerInfo(d *model.StructuredFinancialData) *model.OwnerInfo {
	if d.OwnerInfo == nil {
		d.OwnerInfo = &model.OwnerInfo{}
	}
	return d.OwnerInfo
}

// fieldRules are evaluated in order. Text patterns within a rule are tried
// in order and the first positive match wins; table labels only fill fields
// the text pass left at zero.
var fieldRules = []fieldRule{
	{
		name:   "prior_year_gross_receipts",
		text:   []*regexp.Regexp{onLine(`(?:prior|previous)\s*year(?:'s)?\s*(?:gross\s*receipts|total\s*sales|revenues?|sales)`)},
		labels: []string{"prior year gross receipts", "prior year revenue", "prior year sales", "previous year gross receipts", "previous year revenue"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.PriorYearGrossReceipts },
	},
	{
		name:      "gross_receipts",
		text:      []*regexp.Regexp{onLine(`gross\s*receipts`), onLine(`total\s*(?:sales|revenues?)`), onLine(`\bline\s*1[a-c]?\b`)},
		labels:    []string{"gross receipts", "total sales", "total revenue"},
		exclude:   []string{"prior year", "previous year"},
		skipLines: []string{"prior year", "previous year"},
		field:     func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.GrossReceiptsSales },
	},
	{
		name:   "returns_allowances",
		text:   []*regexp.Regexp{onLine(`returns\s*and\s*allowances`)},
		labels: []string{"returns and allowances"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.ReturnsAllowances },
	},
	{
		name:   "cogs",
		text:   []*regexp.Regexp{onLine(`cost\s*of\s*(?:goods\s*sold|sales)`), onLine(`\bline\s*2\b`)},
		labels: []string{"cost of goods", "cost of sales"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.CostOfGoodsSold },
	},
	{
		name:   "gross_profit",
		signed: true,
		text:   []*regexp.Regexp{onLine(`gross\s*profit`), onLine(`\bline\s*3\b`)},
		labels: []string{"gross profit"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.GrossProfit },
	},
	{
		name:   "other_income",
		text:   []*regexp.Regexp{onLine(`other\s*income`)},
		labels: []string{"other income"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.OtherIncome },
	},
	{
		name:   "capital_gains",
		text:   []*regexp.Regexp{onLine(`(?:net\s*)?(?:long-term\s*)?capital\s*gains?`)},
		labels: []string{"capital gain"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.CapitalGains },
	},
	{
		name:    "total_income",
		signed:  true,
		text:    []*regexp.Regexp{onLine(`total\s*income`)},
		labels:  []string{"total income"},
		exclude: []string{"taxable", "net"},
		field:   func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.TotalIncome },
	},
	{
		name:   "officer_compensation",
		text:   []*regexp.Regexp{onLine(`compensation\s*of\s*officers`), onLine(`officers?'?\s*compensation`), onLine(`\bline\s*7\b`)},
		labels: []string{"officer comp", "compensation of officer"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.CompensationOfOfficers },
	},
	{
		name:   "salaries_wages",
		text:   []*regexp.Regexp{onLine(`salaries\s*(?:and|&)?\s*wages`), onLine(`\bline\s*8\b`)},
		labels: []string{"salaries", "wages"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.SalariesWages },
	},
	{
		name:   "repairs",
		text:   []*regexp.Regexp{onLine(`repairs\s*(?:and|&)?\s*maintenance`)},
		labels: []string{"repairs"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.RepairsMaintenance },
	},
	{
		name:   "bad_debts",
		text:   []*regexp.Regexp{onLine(`bad\s*debts?`)},
		labels: []string{"bad debt"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.BadDebts },
	},
	{
		name:    "rents",
		text:    []*regexp.Regexp{adjacent(`rents?(?:\s*expense)?`)},
		labels:  []string{"rent"},
		exclude: []string{"income", "rental"},
		field:   func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.Rents },
	},
	{
		name:   "taxes_licenses",
		text:   []*regexp.Regexp{onLine(`taxes\s*(?:and|&)\s*licenses`)},
		labels: []string{"taxes and licenses", "taxes & licenses"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.TaxesLicenses },
	},
	{
		name:    "interest_expense",
		text:    []*regexp.Regexp{adjacent(`interest(?:\s*expense)?`)},
		labels:  []string{"interest expense", "interest"},
		exclude: []string{"income"},
		field:   func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.Interest },
	},
	{
		name:    "depreciation",
		text:    []*regexp.Regexp{adjacent(`depreciation(?:\s*expense)?`), onLine(`\bline\s*14\b`)},
		labels:  []string{"depreciation"},
		exclude: []string{"accumulated"},
		field:   func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.Depreciation },
	},
	{
		name:   "depletion",
		text:   []*regexp.Regexp{adjacent(`depletion`)},
		labels: []string{"depletion"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.Depletion },
	},
	{
		name:   "amortization",
		text:   []*regexp.Regexp{adjacent(`amortization(?:\s*expense)?`)},
		labels: []string{"amortization"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.Amortization },
	},
	{
		name:   "advertising",
		text:   []*regexp.Regexp{adjacent(`advertising(?:\s*(?:and|&)\s*marketing)?`)},
		labels: []string{"advertising"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.Advertising },
	},
	{
		name:   "pension",
		text:   []*regexp.Regexp{onLine(`pension,?\s*profit-sharing`)},
		labels: []string{"pension", "profit-sharing"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.PensionProfitSharing },
	},
	{
		name:   "employee_benefits",
		text:   []*regexp.Regexp{onLine(`employee\s*benefit\s*programs?`)},
		labels: []string{"employee benefit"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.EmployeeBenefits },
	},
	{
		name:   "other_deductions",
		text:   []*regexp.Regexp{onLine(`other\s*deductions`)},
		labels: []string{"other deductions"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.Expenses.OtherDeductions },
	},
	{
		name:   "total_deductions",
		text:   []*regexp.Regexp{onLine(`total\s*deductions`), onLine(`\bline\s*20\b`)},
		labels: []string{"total deduction"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.TotalDeductions },
	},
	{
		name:   "taxable_income",
		signed: true,
		text:   []*regexp.Regexp{onLine(`taxable\s*income`)},
		labels: []string{"taxable income"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.TaxableIncome },
	},
	{
		name:   "income_tax",
		text:   []*regexp.Regexp{onLine(`(?:total|federal\s*income)\s*tax\b`)},
		labels: []string{"income tax expense", "provision for income tax"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.IncomeTax },
	},
	{
		name:   "net_income",
		signed: true,
		text: []*regexp.Regexp{
			onLine(`ordinary\s*business\s*income`),
			onLine(`net\s*(?:income|profit)`),
			onLine(`\bline\s*(?:21|22|30|31)\b`),
		},
		labels:  []string{"net income", "ordinary income", "ordinary business income", "net profit"},
		exclude: []string{"per books", "per return"},
		field:   func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.NetIncome },
	},
	{
		name:   "beginning_inventory",
		text:   []*regexp.Regexp{onLine(`inventory\s*at\s*beginning\s*of\s*year`)},
		labels: []string{"inventory at beginning"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.COGSDetail.BeginningInventory },
	},
	{
		name:   "purchases",
		text:   []*regexp.Regexp{adjacent(`purchases`)},
		labels: []string{"purchases"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.COGSDetail.Purchases },
	},
	{
		name:   "cost_of_labor",
		text:   []*regexp.Regexp{adjacent(`cost\s*of\s*labor`)},
		labels: []string{"cost of labor"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.COGSDetail.CostOfLabor },
	},
	{
		name:   "ending_inventory",
		text:   []*regexp.Regexp{onLine(`inventory\s*at\s*end\s*of\s*year`)},
		labels: []string{"inventory at end"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.IncomeStatement.COGSDetail.EndingInventory },
	},
	{
		name:    "cash",
		text:    []*regexp.Regexp{adjacent(`cash(?:\s*and\s*cash\s*equivalents)?`)},
		labels:  []string{"cash"},
		exclude: []string{"flow", "distribution"},
		field:   func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.Cash },
	},
	{
		name:   "accounts_receivable",
		text:   []*regexp.Regexp{onLine(`(?:accounts|trade\s*notes\s*and\s*accounts|trade)\s*receivable`)},
		labels: []string{"receivable"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.AccountsReceivable },
	},
	{
		name:   "inventory",
		text:   []*regexp.Regexp{adjacent(`inventor(?:y|ies)`)},
		labels: []string{"inventory", "inventories"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.Inventory },
	},
	{
		name:   "loans_to_shareholders",
		text:   []*regexp.Regexp{onLine(`loans?\s*to\s*(?:shareholders?|members?|partners?|officers?)`)},
		labels: []string{"loans to shareholder", "loans to member", "due from shareholder"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.LoansToShareholders },
	},
	{
		name:   "total_assets",
		text:   []*regexp.Regexp{onLine(`total\s*assets`)},
		labels: []string{"total assets"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.TotalAssets },
	},
	{
		name:   "accounts_payable",
		text:   []*regexp.Regexp{onLine(`accounts\s*payable`)},
		labels: []string{"accounts payable"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.AccountsPayable },
	},
	{
		name:   "loans_from_shareholders",
		text:   []*regexp.Regexp{onLine(`loans?\s*from\s*(?:shareholders?|members?|partners?|officers?)`)},
		labels: []string{"loans from shareholder", "due to shareholder"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.LoansFromShareholders },
	},
	{
		name:   "mortgages_notes_payable",
		text:   []*regexp.Regexp{onLine(`mortgages,?\s*notes,?\s*(?:and\s*)?bonds\s*payable`), onLine(`notes\s*payable`)},
		labels: []string{"notes payable", "mortgages"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.MortgagesNotesPayable },
	},
	{
		name:   "total_liabilities",
		text:   []*regexp.Regexp{adjacent(`total\s*liabilities`)},
		labels: []string{"total liabilities"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.TotalLiabilities },
	},
	{
		name:   "capital_stock",
		text:   []*regexp.Regexp{onLine(`capital\s*stock`)},
		labels: []string{"capital stock", "common stock"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.CapitalStock },
	},
	{
		name:   "retained_earnings",
		signed: true,
		text:   []*regexp.Regexp{onLine(`retained\s*earnings`)},
		labels: []string{"retained earnings"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.RetainedEarnings },
	},
	{
		name:   "total_equity",
		signed: true,
		text: []*regexp.Regexp{
			onLine(`total\s*(?:stockholders'?|shareholders'?|partners'?|owners'?|members'?)\s*(?:equity|capital)`),
			adjacent(`total\s*equity`),
		},
		labels: []string{"total equity", "total stockholders", "total shareholders", "total partners' capital"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.BalanceSheet.EndOfYear.TotalEquity },
	},
	{
		name:   "section_179",
		text:   []*regexp.Regexp{onLine(`section\s*179`), onLine(`179\s*(?:deduction|expense)`)},
		labels: []string{"section 179"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &scheduleK(d).Section179Deduction },
	},
	{
		name:   "charitable",
		text:   []*regexp.Regexp{onLine(`charitable\s*contributions`)},
		labels: []string{"charitable"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &scheduleK(d).CharitableContributions },
	},
	{
		name:   "distributions",
		text:   []*regexp.Regexp{onLine(`(?:total\s*)?distributions`)},
		labels: []string{"distribution"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &scheduleK(d).Distributions },
	},
	{
		name:   "guaranteed_payments",
		text:   []*regexp.Regexp{onLine(`guaranteed\s*payments`)},
		labels: []string{"guaranteed payment"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &d.GuaranteedPayments },
	},
	{
		name:   "net_income_per_books",
		signed: true,
		text:   []*regexp.Regexp{onLine(`net\s*income\s*\(loss\)\s*per\s*books`)},
		labels: []string{"net income (loss) per books", "net income per books"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &scheduleM1(d).NetIncomePerBooks },
	},
	{
		name:   "income_per_return",
		signed: true,
		text:   []*regexp.Regexp{onLine(`income\s*\(loss\)\s*\(schedule\s*k`), onLine(`income\s*per\s*return`)},
		labels: []string{"income per return"},
		field:  func(d *model.StructuredFinancialData) *float64 { return &scheduleM1(d).IncomePerReturn },
	},
}
