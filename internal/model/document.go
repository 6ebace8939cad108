package model

import "strings"

// DocumentType identifies the kind of financial document being processed.
type DocumentType string

const (
	DocForm1120S          DocumentType = "FORM_1120S"
	DocForm1120           DocumentType = "FORM_1120"
	DocForm1065           DocumentType = "FORM_1065"
	DocScheduleC          DocumentType = "SCHEDULE_C"
	DocScheduleK1         DocumentType = "SCHEDULE_K1"
	DocIncomeStatement    DocumentType = "INCOME_STATEMENT"
	DocBalanceSheet       DocumentType = "BALANCE_SHEET"
	DocFinancialStatement DocumentType = "FINANCIAL_STATEMENT"
	DocUnknown            DocumentType = "UNKNOWN"
)

// DocumentTypes lists every recognized type in classification priority order.
var DocumentTypes = []DocumentType{
	DocForm1120S,
	DocForm1120,
	DocForm1065,
	DocScheduleC,
	DocScheduleK1,
	DocIncomeStatement,
	DocBalanceSheet,
	DocFinancialStatement,
}

// ParseDocumentType maps a loosely formatted label (as returned by an AI
// model or a CLI flag) to a DocumentType. Unrecognized labels map to DocUnknown.
func ParseDocumentType(s string) DocumentType {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "FORM_1120S", "FORM_1120_S", "1120S", "1120_S":
		return DocForm1120S
	case "FORM_1120", "1120":
		return DocForm1120
	case "FORM_1065", "1065":
		return DocForm1065
	case "SCHEDULE_C", "SCHEDULEC", "FORM_1040_SCHEDULE_C":
		return DocScheduleC
	case "SCHEDULE_K1", "SCHEDULE_K_1", "K1", "K_1":
		return DocScheduleK1
	case "INCOME_STATEMENT", "PROFIT_AND_LOSS", "P&L", "PNL":
		return DocIncomeStatement
	case "BALANCE_SHEET":
		return DocBalanceSheet
	case "FINANCIAL_STATEMENT", "FINANCIAL_STATEMENTS":
		return DocFinancialStatement
	default:
		return DocUnknown
	}
}

// IsTaxReturn reports whether the document is an entity-level tax return.
func (d DocumentType) IsTaxReturn() bool {
	switch d {
	case DocForm1120S, DocForm1120, DocForm1065, DocScheduleC:
		return true
	}
	return false
}

// IsPassThroughReturn reports whether the return allocates income to owners via K-1s.
func (d DocumentType) IsPassThroughReturn() bool {
	return d == DocForm1120S || d == DocForm1065
}

// IsFinancialStatement reports whether the document is a book (non-tax) statement.
func (d DocumentType) IsFinancialStatement() bool {
	switch d {
	case DocIncomeStatement, DocBalanceSheet, DocFinancialStatement:
		return true
	}
	return false
}

// EntityType returns the entity type implied by a tax form, or EntityOther.
func (d DocumentType) EntityType() EntityType {
	switch d {
	case DocForm1120S:
		return EntitySCorp
	case DocForm1120:
		return EntityCCorp
	case DocForm1065:
		return EntityPartnership
	case DocScheduleC:
		return EntitySoleProp
	}
	return EntityOther
}

// ConfidenceLevel is the coarse confidence attached to a classification.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Rank orders confidence levels so they can be compared.
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// ParseConfidenceLevel normalizes a confidence label, defaulting to low.
func ParseConfidenceLevel(s string) ConfidenceLevel {
	switch ConfidenceLevel(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// Classification sources.
const (
	SourceKeyword   = "keyword"
	SourceAI        = "ai"
	SourceKeywordAI = "keyword+ai"
)

const (
	MinTaxYear = 2015
	MaxTaxYear = 2030
)

// ValidTaxYear reports whether y is inside the accepted tax year range.
func ValidTaxYear(y int) bool {
	return y >= MinTaxYear && y <= MaxTaxYear
}

// DocumentClassification is produced once per document and never mutated.
type DocumentClassification struct {
	DocumentType DocumentType    `json:"document_type"`
	Confidence   ConfidenceLevel `json:"confidence"`
	Indicators   []string        `json:"indicators"`
	TaxYear      int             `json:"tax_year,omitempty"`
	EntityName   string          `json:"entity_name,omitempty"`
	Source       string          `json:"source,omitempty"` // keyword, ai, or keyword+ai
}

// UnknownClassification is the worst-case classification result.
func UnknownClassification() DocumentClassification {
	return DocumentClassification{
		DocumentType: DocUnknown,
		Confidence:   ConfidenceLow,
		Indicators:   []string{},
	}
}
