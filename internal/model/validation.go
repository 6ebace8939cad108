package model

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationResult is one triggered rule for one evaluation.
type ValidationResult struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// ValidationSummary aggregates a set of results. Blockers are the failed
// error-severity results that gate valuation.
type ValidationSummary struct {
	Total    int                `json:"total"`
	Passed   int                `json:"passed"`
	Failed   int                `json:"failed"`
	Errors   int                `json:"errors"`
	Warnings int                `json:"warnings"`
	Info     int                `json:"info"`
	Blockers []ValidationResult `json:"blockers"`
}

// ValidationReport is the validation block of the final output.
type ValidationReport struct {
	Results []ValidationResult `json:"results"`
	Summary ValidationSummary  `json:"summary"`
}

// Recommendation is the routing decision derived from overall confidence.
type Recommendation string

const (
	RecommendReady          Recommendation = "ready"
	RecommendOpusEscalation Recommendation = "opus_escalation"
	RecommendHumanReview    Recommendation = "human_review"
)

// ConfidenceBreakdown holds the four component scores, each 0-100.
type ConfidenceBreakdown struct {
	Classification   int `json:"classification"`
	DataCompleteness int `json:"dataCompleteness"`
	Validation       int `json:"validation"`
	Consistency      int `json:"consistency"`
}

// ConfidenceScore is a pure function of the scorer inputs.
type ConfidenceScore struct {
	Overall             int                 `json:"overall"`
	Breakdown           ConfidenceBreakdown `json:"breakdown"`
	Recommendation      Recommendation      `json:"recommendation"`
	Reasoning           []string            `json:"reasoning"`
	MissingCriticalData []string            `json:"missingCriticalData"`
}

// ComparisonType names a cross-document comparison family.
type ComparisonType string

const (
	CompareTaxVsStatement ComparisonType = "tax_return_vs_financial_statement"
	CompareK1VsReturn     ComparisonType = "k1_vs_return"
	CompareYearOverYear   ComparisonType = "year_over_year"
)

// Discrepancy is one compared field that exceeded tolerance.
type Discrepancy struct {
	Field             string   `json:"field"`
	SourceA           string   `json:"source_a"`
	ValueA            float64  `json:"value_a"`
	SourceB           string   `json:"source_b"`
	ValueB            float64  `json:"value_b"`
	Difference        float64  `json:"difference"`
	PercentDifference float64  `json:"percent_difference"`
	Severity          Severity `json:"severity"`
	Message           string   `json:"message"`
}

// CrossDocValidationResult is the outcome of one comparison between documents.
type CrossDocValidationResult struct {
	ComparisonType    ComparisonType `json:"comparison_type"`
	TaxYear           int            `json:"tax_year,omitempty"`
	DocumentsCompared []string       `json:"documents_compared"`
	Passed            bool           `json:"passed"`
	Discrepancies     []Discrepancy  `json:"discrepancies"`
}

// HasSeverity reports whether any discrepancy carries the given severity.
func (r CrossDocValidationResult) HasSeverity(s Severity) bool {
	for _, d := range r.Discrepancies {
		if d.Severity == s {
			return true
		}
	}
	return false
}

// Involves reports whether the comparison included the given document.
func (r CrossDocValidationResult) Involves(documentID string) bool {
	for _, id := range r.DocumentsCompared {
		if id == documentID {
			return true
		}
	}
	return false
}

// AIEnrichment is the optional output of AI-assisted validation.
type AIEnrichment struct {
	AdditionalFlags      []ValidationResult `json:"additional_flags"`
	NormalizationNotes   []string           `json:"normalization_notes"`
	ConfidenceAdjustment int                `json:"confidence_adjustment"`
	Model                string             `json:"model,omitempty"`
}
