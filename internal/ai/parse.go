package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"

	"github.com/sells-group/finextract/internal/model"
)

const (
	minConfidenceAdjustment = -20
	maxConfidenceAdjustment = 10
)

// cleanJSON strips markdown fences and surrounding prose from a model
// response, leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// decodeJSON unmarshals a model response into v, falling back to a repaired
// document when strict parsing fails.
func decodeJSON(text string, v any) error {
	text = cleanJSON(text)
	if text == "" {
		return eris.New("ai: empty response")
	}

	strictErr := json.Unmarshal([]byte(text), v)
	if strictErr == nil {
		return nil
	}

	repaired, err := jsonrepair.RepairJSON(text)
	if err != nil {
		return eris.Wrap(strictErr, "ai: unparseable response")
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return eris.Wrap(err, "ai: repaired response still invalid")
	}
	return nil
}

type classificationResponse struct {
	DocumentType string   `json:"document_type"`
	Confidence   string   `json:"confidence"`
	Indicators   []string `json:"indicators"`
	TaxYear      *int     `json:"tax_year"`
	EntityName   string   `json:"entity_name"`
}

// parseClassification converts a model response into a classification.
// Anything that cannot be parsed degrades to UNKNOWN with low confidence.
func parseClassification(text string) model.DocumentClassification {
	var resp classificationResponse
	if err := decodeJSON(text, &resp); err != nil {
		out := model.UnknownClassification()
		out.Source = model.SourceAI
		return out
	}

	out := model.DocumentClassification{
		DocumentType: model.ParseDocumentType(resp.DocumentType),
		Confidence:   model.ParseConfidenceLevel(resp.Confidence),
		Indicators:   resp.Indicators,
		EntityName:   strings.TrimSpace(resp.EntityName),
		Source:       model.SourceAI,
	}
	if out.Indicators == nil {
		out.Indicators = []string{}
	}
	if out.DocumentType == model.DocUnknown {
		out.Confidence = model.ConfidenceLow
	}
	if resp.TaxYear != nil && model.ValidTaxYear(*resp.TaxYear) {
		out.TaxYear = *resp.TaxYear
	}
	return out
}

type enrichmentResponse struct {
	AdditionalFlags []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Severity string `json:"severity"`
		Field    string `json:"field"`
		Message  string `json:"message"`
	} `json:"additional_flags"`
	NormalizationNotes   []string `json:"normalization_notes"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment"`
}

// parseEnrichment converts a validation response into an enrichment. Flags
// without a message are dropped and the confidence adjustment is clamped.
func parseEnrichment(text string) (*model.AIEnrichment, error) {
	var resp enrichmentResponse
	if err := decodeJSON(text, &resp); err != nil {
		return nil, err
	}

	out := &model.AIEnrichment{
		AdditionalFlags:    []model.ValidationResult{},
		NormalizationNotes: []string{},
	}
	for i, f := range resp.AdditionalFlags {
		if strings.TrimSpace(f.Message) == "" {
			continue
		}
		sev := parseSeverity(f.Severity)
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("AI%03d", i+1)
		}
		out.AdditionalFlags = append(out.AdditionalFlags, model.ValidationResult{
			ID:       id,
			Name:     f.Name,
			Severity: sev,
			Passed:   sev == model.SeverityInfo,
			Field:    f.Field,
			Message:  f.Message,
		})
	}
	for _, n := range resp.NormalizationNotes {
		if n = strings.TrimSpace(n); n != "" {
			out.NormalizationNotes = append(out.NormalizationNotes, n)
		}
	}

	adj := int(resp.ConfidenceAdjustment)
	adj = max(adj, minConfidenceAdjustment)
	adj = min(adj, maxConfidenceAdjustment)
	out.ConfidenceAdjustment = adj
	return out, nil
}

// parseSeverity maps a model-supplied severity, treating anything
// unrecognized as a warning.
func parseSeverity(s string) model.Severity {
	switch model.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case model.SeverityError:
		return model.SeverityError
	case model.SeverityInfo:
		return model.SeverityInfo
	}
	return model.SeverityWarning
}
