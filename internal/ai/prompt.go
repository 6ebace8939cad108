package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/textnorm"
)

const (
	maxPromptChars    = 4000
	maxPromptTables   = 5
	maxPromptTableRow = 3
)

const classifySystemPrompt = `You classify financial documents for small-business valuation.
Return ONLY a JSON object with this shape:
{"document_type": "<TYPE>", "confidence": "high|medium|low", "indicators": ["<phrase>", ...], "tax_year": <year or null>, "entity_name": "<name or empty>"}
TYPE must be one of: FORM_1120S, FORM_1120, FORM_1065, SCHEDULE_C, SCHEDULE_K1, INCOME_STATEMENT, BALANCE_SHEET, FINANCIAL_STATEMENT, UNKNOWN.
Use UNKNOWN with low confidence when the document is not a recognizable financial document.`

const validateSystemPrompt = `You review extracted small-business financial data before valuation.
You are given structured data mapped from a tax return or financial statement and the findings of a rule engine.
Look for problems the rules did not catch: implausible values, likely mapping mistakes, non-recurring items that need normalization.
Return ONLY a JSON object with this shape:
{"additional_flags": [{"id": "AI001", "name": "<short name>", "severity": "error|warning|info", "field": "<field path>", "message": "<explanation>"}],
 "normalization_notes": ["<note>"],
 "confidence_adjustment": <integer between -20 and 10>}
Do not repeat findings already reported by the rule engine.`

// BuildClassifyPrompt renders the user prompt for document classification:
// the leading raw text plus a short summary of the first tables.
func BuildClassifyPrompt(req ClassifyRequest) string {
	var b strings.Builder
	b.WriteString("Classify this document.\n\n")
	fmt.Fprintf(&b, "<document_text>\n%s\n</document_text>\n", textnorm.Truncate(req.RawText, maxPromptChars))

	if summary := summarizeTables(req.Tables); summary != "" {
		fmt.Fprintf(&b, "\n<tables>\n%s</tables>\n", summary)
	}
	return b.String()
}

// BuildValidatePrompt renders the user prompt for AI-assisted validation.
func BuildValidatePrompt(req ValidateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s (confidence %s)\n", req.Classification.DocumentType, req.Classification.Confidence)
	if req.Classification.TaxYear > 0 {
		fmt.Fprintf(&b, "Tax year: %d\n", req.Classification.TaxYear)
	}

	if req.Data != nil {
		data, err := json.MarshalIndent(req.Data, "", "  ")
		if err == nil {
			fmt.Fprintf(&b, "\n<structured_data>\n%s\n</structured_data>\n", data)
		}
	}

	b.WriteString("\n<rule_findings>\n")
	if len(req.Results) == 0 {
		b.WriteString("none\n")
	}
	for _, r := range req.Results {
		fmt.Fprintf(&b, "- [%s] %s %s: %s\n", r.Severity, r.ID, r.Name, r.Message)
	}
	b.WriteString("</rule_findings>\n")

	if req.RawText != "" {
		fmt.Fprintf(&b, "\n<document_text>\n%s\n</document_text>\n", textnorm.Truncate(req.RawText, maxPromptChars))
	}
	return b.String()
}

func summarizeTables(tables []model.Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i >= maxPromptTables {
			break
		}
		fmt.Fprintf(&b, "Table %d (page %d):\n", i+1, t.PageNumber)
		if len(t.Headers) > 0 {
			fmt.Fprintf(&b, "  %s\n", strings.Join(t.Headers, " | "))
		}
		for j, row := range t.Rows {
			if j >= maxPromptTableRow {
				break
			}
			fmt.Fprintf(&b, "  %s\n", strings.Join(row, " | "))
		}
	}
	return b.String()
}
