// Package classify identifies the financial document type of a Stage 1
// extraction using keyword heuristics with an optional AI fallback.
package classify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/ai"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/textnorm"
)

// Fallback classifies documents the keyword pass cannot settle.
// ai.Capability satisfies it.
type Fallback interface {
	Classify(ctx context.Context, req ai.ClassifyRequest) (model.DocumentClassification, error)
}

// Classifier assigns a DocumentClassification to extracted documents.
type Classifier struct {
	fallback Fallback
}

// New creates a Classifier. fallback may be nil, in which case ambiguous
// documents resolve to the best keyword guess or UNKNOWN.
func New(fallback Fallback) *Classifier {
	return &Classifier{fallback: fallback}
}

// Classify returns the classification for a Stage 1 output. AI failures
// degrade to the keyword result; only context cancellation is returned as
// an error.
func (c *Classifier) Classify(ctx context.Context, in *model.Stage1Output) (model.DocumentClassification, error) {
	if in == nil {
		return model.UnknownClassification(), nil
	}
	log := zap.L().With(zap.String("document_id", in.DocumentID))

	scores := ScoreKeywords(textnorm.Fold(in.RawText))
	decided := keywordDecision(scores)

	if decided != nil && decided.Confidence == model.ConfidenceHigh {
		out := finish(*decided, in.RawText, nil)
		log.Debug("classify: keyword match",
			zap.String("document_type", string(out.DocumentType)),
			zap.Strings("indicators", out.Indicators),
		)
		return out, nil
	}

	if c.fallback == nil {
		return finish(keywordOnly(decided, scores), in.RawText, nil), nil
	}

	aiOut, err := c.fallback.Classify(ctx, ai.ClassifyRequest{
		DocumentID: in.DocumentID,
		RawText:    in.RawText,
		Tables:     in.Tables,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.UnknownClassification(), eris.Wrap(ctx.Err(), "classify: cancelled")
		}
		log.Warn("classify: ai fallback failed, using keyword result", zap.Error(err))
		return finish(keywordOnly(decided, scores), in.RawText, nil), nil
	}

	out := merge(decided, scores, aiOut)
	log.Info("classify: document classified",
		zap.String("document_type", string(out.DocumentType)),
		zap.String("confidence", string(out.Confidence)),
		zap.String("source", out.Source),
	)
	return finish(out, in.RawText, &aiOut), nil
}

// ClassifyText classifies raw text with keywords only.
func ClassifyText(raw string) model.DocumentClassification {
	scores := ScoreKeywords(textnorm.Fold(raw))
	return finish(keywordOnly(keywordDecision(scores), scores), raw, nil)
}

// keywordOnly resolves a classification without AI: the decided result, else
// the top-scoring type at low confidence, else UNKNOWN.
func keywordOnly(decided *model.DocumentClassification, scores []TypeScore) model.DocumentClassification {
	if decided != nil {
		return *decided
	}
	if len(scores) > 0 {
		return model.DocumentClassification{
			DocumentType: scores[0].Type,
			Confidence:   model.ConfidenceLow,
			Indicators:   append([]string(nil), scores[0].Matched...),
			Source:       model.SourceKeyword,
		}
	}
	out := model.UnknownClassification()
	out.Source = model.SourceKeyword
	return out
}

// merge combines the keyword view with the AI answer. Agreement boosts the
// result to high; an AI answer that contradicts a keyword result is kept
// but capped at medium.
func merge(decided *model.DocumentClassification, scores []TypeScore, aiOut model.DocumentClassification) model.DocumentClassification {
	guess := keywordOnly(decided, scores)

	if aiOut.DocumentType == model.DocUnknown {
		return guess
	}

	if guess.DocumentType == aiOut.DocumentType {
		return model.DocumentClassification{
			DocumentType: guess.DocumentType,
			Confidence:   model.ConfidenceHigh,
			Indicators:   union(guess.Indicators, aiOut.Indicators),
			Source:       model.SourceKeywordAI,
		}
	}

	out := aiOut
	out.Source = model.SourceAI
	out.Indicators = append([]string(nil), aiOut.Indicators...)
	if guess.DocumentType != model.DocUnknown && out.Confidence == model.ConfidenceHigh {
		out.Confidence = model.ConfidenceMedium
	}
	return out
}

// finish fills tax year and entity name from the text, falling back to the
// AI answer when the text yields nothing.
func finish(out model.DocumentClassification, raw string, aiOut *model.DocumentClassification) model.DocumentClassification {
	if out.Indicators == nil {
		out.Indicators = []string{}
	}
	if out.DocumentType == model.DocUnknown {
		out.Confidence = model.ConfidenceLow
	}

	out.TaxYear = ExtractTaxYear(raw)
	if out.TaxYear == 0 && aiOut != nil && model.ValidTaxYear(aiOut.TaxYear) {
		out.TaxYear = aiOut.TaxYear
	}

	out.EntityName = ExtractEntityName(raw)
	if out.EntityName == "" && aiOut != nil {
		out.EntityName = aiOut.EntityName
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
