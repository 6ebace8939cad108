package model

import (
	"sort"
	"time"
)

// ExtractionStatus tracks a document through persistence.
type ExtractionStatus string

const (
	StatusNone       ExtractionStatus = "none"
	StatusPending    ExtractionStatus = "pending"
	StatusProcessing ExtractionStatus = "processing"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
)

// CovidFinding is one detected relief item, kept for auditability.
type CovidFinding struct {
	Category  string  `json:"category"`
	Amount    float64 `json:"amount"`
	Direction string  `json:"direction"`
	Keyword   string  `json:"keyword"`
	Rationale string  `json:"rationale"`
}

// CovidSummary is the detector output attached to a year.
type CovidSummary struct {
	TaxYear             int              `json:"tax_year"`
	IsCovidRelevantYear bool             `json:"is_covid_relevant_year"`
	Adjustments         CovidAdjustments `json:"adjustments"`
	TotalAdjustment     float64          `json:"total_adjustment"`
	Findings            []CovidFinding   `json:"findings"`
	Warnings            []string         `json:"warnings"`
}

// TokenUsage tracks AI token consumption.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost += other.Cost
}

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
	StageStatusDegraded StageStatus = "degraded"
)

// StageResult holds the outcome of one pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Attempts int            `json:"attempts,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ProcessingMetadata records how the output was produced.
type ProcessingMetadata struct {
	Stages     []StageResult `json:"stages"`
	AICalls    int           `json:"ai_calls"`
	TokenUsage TokenUsage    `json:"token_usage"`
	DurationMS int64         `json:"duration_ms"`
	Degraded   bool          `json:"degraded"`
	Warnings   []string      `json:"warnings"`
}

// FinalExtractionOutput is the terminal artifact of the engine for one document.
type FinalExtractionOutput struct {
	ReportID          string                          `json:"report_id"`
	DocumentID        string                          `json:"document_id"`
	DocumentType      DocumentType                    `json:"document_type"`
	EntityType        EntityType                      `json:"entity_type"`
	CompanyInfo       CompanyInfo                     `json:"company_info"`
	Classification    DocumentClassification          `json:"classification"`
	FinancialData     map[int]StructuredFinancialData `json:"financial_data"`
	CovidAdjustments  map[int]CovidSummary            `json:"covid_adjustments,omitempty"`
	Validation        ValidationReport                `json:"validation"`
	Confidence        ConfidenceScore                 `json:"confidence"`
	CrossDocument     []CrossDocValidationResult      `json:"cross_document,omitempty"`
	AIEnrichment      *AIEnrichment                   `json:"ai_enrichment,omitempty"`
	Processing        ProcessingMetadata              `json:"processing"`
	ReadyForValuation bool                            `json:"ready_for_valuation"`
	ExtractedAt       time.Time                       `json:"extracted_at"`
}

// Years returns the available years in ascending order.
func (o *FinalExtractionOutput) Years() []int {
	years := make([]int, 0, len(o.FinancialData))
	for y := range o.FinancialData {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// ReportState is what the store returns for a report.
type ReportState struct {
	ReportID    string                  `json:"report_id"`
	Status      ExtractionStatus        `json:"status"`
	Documents   []DocumentState         `json:"documents"`
	Extractions []FinalExtractionOutput `json:"extractions,omitempty"`
}

// DocumentState is one document row in a report.
type DocumentState struct {
	DocumentID string           `json:"document_id"`
	Status     ExtractionStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Checkpoint stores a completed stage artifact so reprocessing can resume.
type Checkpoint struct {
	ReportID   string    `json:"report_id"`
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Data       []byte    `json:"data"`
	CreatedAt  time.Time `json:"created_at"`
}

// AggregateStatus folds per-document statuses into one report status.
// Precedence: failed, processing, pending, completed. No documents means none.
func AggregateStatus(docs []DocumentState) ExtractionStatus {
	if len(docs) == 0 {
		return StatusNone
	}
	seen := make(map[ExtractionStatus]bool, len(docs))
	for _, d := range docs {
		seen[d.Status] = true
	}
	for _, s := range []ExtractionStatus{StatusFailed, StatusProcessing, StatusPending} {
		if seen[s] {
			return s
		}
	}
	if seen[StatusCompleted] {
		return StatusCompleted
	}
	return StatusNone
}
