package model

import (
	"strings"
	"time"
)

// ExtractionMethod records how Stage 1 produced its text.
type ExtractionMethod string

const (
	MethodPDFPlumber ExtractionMethod = "pdfplumber"
	MethodOCR        ExtractionMethod = "ocr"
)

// Table is one table detected on a page.
type Table struct {
	PageNumber  int        `json:"page_number"`
	TableIndex  int        `json:"table_index"`
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"rows"`
	RowCount    int        `json:"row_count"`
	ColumnCount int        `json:"column_count"`
}

// PageRegions splits a page's text by layout region.
type PageRegions struct {
	Header    string `json:"header"`
	BodyLeft  string `json:"body_left"`
	BodyRight string `json:"body_right"`
	Footer    string `json:"footer"`
	FullText  string `json:"full_text"`
}

// ExtractionMetadata describes the Stage 1 run.
type ExtractionMetadata struct {
	PageCount        int              `json:"page_count"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	IsScanned        bool             `json:"is_scanned"`
	OCRConfidence    *float64         `json:"ocr_confidence,omitempty"`
}

// Stage1Output is the raw extraction produced by the external table/OCR service.
type Stage1Output struct {
	DocumentID          string                 `json:"document_id"`
	Filename            string                 `json:"filename,omitempty"`
	ExtractionTimestamp time.Time              `json:"extraction_timestamp"`
	Tables              []Table                `json:"tables"`
	TextByRegion        map[string]PageRegions `json:"text_by_region"`
	RawText             string                 `json:"raw_text"`
	Metadata            ExtractionMetadata     `json:"metadata"`
}

// TextLength returns the length of the trimmed raw text.
func (s *Stage1Output) TextLength() int {
	return len(strings.TrimSpace(s.RawText))
}

// Stage2Output is the classified and mapped document handed to validation.
type Stage2Output struct {
	DocumentID     string                  `json:"document_id"`
	Classification DocumentClassification  `json:"classification"`
	Data           StructuredFinancialData `json:"data"`
	RawText        string                  `json:"-"`
}
