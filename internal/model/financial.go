package model

import "strings"

// EntityType is the legal form of the business. It is the only axis that
// changes which field counts as owner compensation.
type EntityType string

const (
	EntitySCorp       EntityType = "S-Corp"
	EntityPartnership EntityType = "Partnership"
	EntitySoleProp    EntityType = "Sole Proprietorship"
	EntityCCorp       EntityType = "C-Corp"
	EntityOther       EntityType = "Other"
)

// ParseEntityType maps common spellings to an EntityType.
func ParseEntityType(s string) EntityType {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", " ", "", "_", "", ".", "").Replace(norm)
	switch norm {
	case "scorp", "scorporation", "1120s":
		return EntitySCorp
	case "partnership", "llcpartnership", "1065", "lp", "llp":
		return EntityPartnership
	case "soleproprietorship", "soleprop", "schedulec", "proprietorship":
		return EntitySoleProp
	case "ccorp", "ccorporation", "corporation", "1120":
		return EntityCCorp
	}
	return EntityOther
}

// CompanyInfo identifies the filer.
type CompanyInfo struct {
	BusinessName     string     `json:"business_name"`
	EIN              string     `json:"ein,omitempty"`
	EntityType       EntityType `json:"entity_type"`
	NAICSCode        string     `json:"naics_code,omitempty"`
	BusinessActivity string     `json:"business_activity,omitempty"`
	AccountingMethod string     `json:"accounting_method,omitempty"`
	FiscalYearEnd    string     `json:"fiscal_year_end,omitempty"`
	City             string     `json:"city,omitempty"`
	State            string     `json:"state,omitempty"`
}

// IncomeStatement holds revenue through net income for one year.
type IncomeStatement struct {
	GrossReceiptsSales     float64    `json:"gross_receipts_sales"`
	ReturnsAllowances      float64    `json:"returns_allowances"`
	CostOfGoodsSold        float64    `json:"cost_of_goods_sold"`
	GrossProfit            float64    `json:"gross_profit"`
	OtherIncome            float64    `json:"other_income"`
	CapitalGains           float64    `json:"capital_gains"`
	TotalIncome            float64    `json:"total_income"`
	TotalDeductions        float64    `json:"total_deductions"`
	TaxableIncome          float64    `json:"taxable_income"`
	IncomeTax              float64    `json:"income_tax"`
	NetIncome              float64    `json:"net_income"`
	PriorYearGrossReceipts float64    `json:"prior_year_gross_receipts"`
	COGSDetail             COGSDetail `json:"cogs_detail"`
}

// COGSDetail is the Form 1125-A cost of goods sold build-up.
type COGSDetail struct {
	BeginningInventory float64 `json:"beginning_inventory"`
	Purchases          float64 `json:"purchases"`
	CostOfLabor        float64 `json:"cost_of_labor"`
	OtherCosts         float64 `json:"other_costs"`
	EndingInventory    float64 `json:"ending_inventory"`
}

// IsEmpty reports whether no COGS detail was extracted.
func (c COGSDetail) IsEmpty() bool {
	return c == COGSDetail{}
}

// Computed returns beginning inventory plus additions minus ending inventory.
func (c COGSDetail) Computed() float64 {
	return c.BeginningInventory + c.Purchases + c.CostOfLabor + c.OtherCosts - c.EndingInventory
}

// Expenses holds the deduction lines.
type Expenses struct {
	CompensationOfOfficers float64 `json:"compensation_of_officers"`
	SalariesWages          float64 `json:"salaries_wages"`
	RepairsMaintenance     float64 `json:"repairs_maintenance"`
	BadDebts               float64 `json:"bad_debts"`
	Rents                  float64 `json:"rents"`
	TaxesLicenses          float64 `json:"taxes_licenses"`
	Interest               float64 `json:"interest"`
	Depreciation           float64 `json:"depreciation"`
	Depletion              float64 `json:"depletion"`
	Amortization           float64 `json:"amortization"`
	Advertising            float64 `json:"advertising"`
	PensionProfitSharing   float64 `json:"pension_profit_sharing"`
	EmployeeBenefits       float64 `json:"employee_benefits"`
	OtherDeductions        float64 `json:"other_deductions"`
}

// BalanceSnapshot is one side (beginning or end of year) of a balance sheet.
type BalanceSnapshot struct {
	Cash                    float64 `json:"cash"`
	AccountsReceivable      float64 `json:"accounts_receivable"`
	Inventory               float64 `json:"inventory"`
	FixedAssets             float64 `json:"fixed_assets"`
	AccumulatedDepreciation float64 `json:"accumulated_depreciation"`
	LoansToShareholders     float64 `json:"loans_to_shareholders"`
	OtherAssets             float64 `json:"other_assets"`
	TotalAssets             float64 `json:"total_assets"`
	AccountsPayable         float64 `json:"accounts_payable"`
	LoansFromShareholders   float64 `json:"loans_from_shareholders"`
	MortgagesNotesPayable   float64 `json:"mortgages_notes_payable"`
	OtherLiabilities        float64 `json:"other_liabilities"`
	TotalLiabilities        float64 `json:"total_liabilities"`
	CapitalStock            float64 `json:"capital_stock"`
	RetainedEarnings        float64 `json:"retained_earnings"`
	TotalEquity             float64 `json:"total_equity"`
}

// IsEmpty reports whether no balance sheet values were extracted.
func (b BalanceSnapshot) IsEmpty() bool {
	return b == BalanceSnapshot{}
}

// BalanceSheet carries beginning-of-year and end-of-year snapshots.
type BalanceSheet struct {
	BeginningOfYear BalanceSnapshot `json:"beginning_of_year"`
	EndOfYear       BalanceSnapshot `json:"end_of_year"`
}

// IsEmpty reports whether neither snapshot carries data.
func (b BalanceSheet) IsEmpty() bool {
	return b.BeginningOfYear.IsEmpty() && b.EndOfYear.IsEmpty()
}

// ScheduleK holds pass-through allocation totals (or a single owner's share on a K-1).
type ScheduleK struct {
	OrdinaryBusinessIncome  float64 `json:"ordinary_business_income"`
	NetRentalIncome         float64 `json:"net_rental_income"`
	InterestIncome          float64 `json:"interest_income"`
	DividendIncome          float64 `json:"dividend_income"`
	NetSection1231Gain      float64 `json:"net_section_1231_gain"`
	NetLongTermCapitalGain  float64 `json:"net_long_term_capital_gain"`
	Section179Deduction     float64 `json:"section_179_deduction"`
	CharitableContributions float64 `json:"charitable_contributions"`
	Distributions           float64 `json:"distributions"`
	OwnershipPercentage     float64 `json:"ownership_percentage,omitempty"`
}

// ScheduleM1 reconciles book income to taxable income.
type ScheduleM1 struct {
	NetIncomePerBooks           float64 `json:"net_income_per_books"`
	FederalIncomeTax            float64 `json:"federal_income_tax"`
	IncomeNotOnBooks            float64 `json:"income_not_on_books"`
	ExpensesNotDeducted         float64 `json:"expenses_not_deducted"`
	IncomeNotOnReturn           float64 `json:"income_not_on_return"`
	DeductionsNotChargedToBooks float64 `json:"deductions_not_charged_to_books"`
	IncomePerReturn             float64 `json:"income_per_return"`
}

// OwnerInfo holds owner-level amounts reported outside the main schedules.
type OwnerInfo struct {
	OwnerName             string  `json:"owner_name,omitempty"`
	OwnershipPercentage   float64 `json:"ownership_percentage"`
	OwnerCompensation     float64 `json:"owner_compensation"`
	Distributions         float64 `json:"distributions"`
	LoansToShareholders   float64 `json:"loans_to_shareholders"`
	LoansFromShareholders float64 `json:"loans_from_shareholders"`
}

// CovidAdjustments records pandemic relief recognized as income.
type CovidAdjustments struct {
	PPPLoanForgiveness      float64 `json:"ppp_loan_forgiveness"`
	EIDLAdvances            float64 `json:"eidl_advances"`
	EmployeeRetentionCredit float64 `json:"employee_retention_credit"`
	OtherRelief             float64 `json:"other_relief"`
}

// Total returns the relief subtracted from net income during normalization.
// Other relief is surfaced for review but not subtracted automatically.
func (c CovidAdjustments) Total() float64 {
	return c.PPPLoanForgiveness + c.EIDLAdvances + c.EmployeeRetentionCredit
}

// RedFlag is a structural indicator that warrants review.
type RedFlag struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount,omitempty"`
}

// StructuredFinancialData is the per-document, per-year financial bundle.
// Monetary fields are plain float64 values so missing data reads as zero.
type StructuredFinancialData struct {
	DocumentID         string            `json:"document_id"`
	DocumentType       DocumentType      `json:"document_type"`
	TaxYear            int               `json:"tax_year"`
	CompanyInfo        CompanyInfo       `json:"company_info"`
	IncomeStatement    IncomeStatement   `json:"income_statement"`
	Expenses           Expenses          `json:"expenses"`
	BalanceSheet       BalanceSheet      `json:"balance_sheet"`
	ScheduleK          *ScheduleK        `json:"schedule_k,omitempty"`
	ScheduleM1         *ScheduleM1       `json:"schedule_m1,omitempty"`
	GuaranteedPayments float64           `json:"guaranteed_payments"`
	OwnerInfo          *OwnerInfo        `json:"owner_info,omitempty"`
	CovidAdjustments   *CovidAdjustments `json:"covid_adjustments,omitempty"`
	RedFlags           []RedFlag         `json:"red_flags"`
}

// Clone returns a deep copy so later stages never mutate an earlier stage's output.
func (d StructuredFinancialData) Clone() StructuredFinancialData {
	out := d
	if d.ScheduleK != nil {
		k := *d.ScheduleK
		out.ScheduleK = &k
	}
	if d.ScheduleM1 != nil {
		m := *d.ScheduleM1
		out.ScheduleM1 = &m
	}
	if d.OwnerInfo != nil {
		o := *d.OwnerInfo
		out.OwnerInfo = &o
	}
	if d.CovidAdjustments != nil {
		c := *d.CovidAdjustments
		out.CovidAdjustments = &c
	}
	out.RedFlags = append([]RedFlag(nil), d.RedFlags...)
	return out
}
