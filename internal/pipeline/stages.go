package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/ai"
	"github.com/sells-group/finextract/internal/confidence"
	"github.com/sells-group/finextract/internal/covid"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/resilience"
	"github.com/sells-group/finextract/internal/validation"
	"github.com/sells-group/finextract/pkg/extractor"
)

// AI validation outcomes recorded in stage 3 metadata.
const (
	aiDisabled = "disabled"
	aiBlocked  = "blocked"
	aiFailed   = "failed"
	aiApplied  = "applied"
)

// mapped is the Stage 2 artifact. It is also the stage 2 checkpoint payload,
// so it carries the raw text the Stage2Output leaves out of its JSON.
type mapped struct {
	Output  model.Stage2Output `json:"output"`
	RawText string             `json:"raw_text"`
	Covid   model.CovidSummary `json:"covid"`
}

func (r *run) stage1(ctx context.Context, doc Document) (*model.Stage1Output, error) {
	var out *model.Stage1Output
	err := r.track(StateStage1, func(sr *model.StageResult) error {
		if doc.Stage1 != nil {
			s1 := *doc.Stage1
			if s1.DocumentID == "" {
				s1.DocumentID = r.res.DocumentID
			}
			out = &s1
			sr.Metadata = map[string]any{"source": "input"}
			return nil
		}

		if cp := r.loadCheckpoint(ctx, StateStage1); cp != nil {
			var s1 model.Stage1Output
			if err := json.Unmarshal(cp.Data, &s1); err == nil {
				out = &s1
				sr.Status = model.StageStatusSkipped
				sr.Metadata = map[string]any{"source": "checkpoint"}
				return nil
			}
			r.log.Warn("pipeline: ignoring unreadable stage 1 checkpoint")
		}

		if r.o.extractor == nil {
			return eris.New("pipeline: no extraction client configured and no stage 1 output supplied")
		}

		retry := resilience.RetryConfig{
			MaxAttempts:    r.o.cfg.MaxAttempts,
			InitialBackoff: r.o.cfg.InitialBackoff,
			Multiplier:     r.o.cfg.BackoffMultiplier,
			OnRetry:        resilience.RetryLogger("extractor", "extract_pdf"),
			Sleep:          r.o.sleep,
		}
		s1, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Stage1Output, error) {
			sr.Attempts++
			sctx, cancel := r.o.stageContext(ctx)
			defer cancel()
			return r.o.extractor.Extract(sctx, extractor.Request{
				DocumentID: r.res.DocumentID,
				Filename:   doc.Filename,
				PDF:        doc.PDF,
			})
		})
		if err != nil {
			return eris.Wrap(err, "pipeline: stage 1 extraction")
		}
		if s1.DocumentID == "" {
			s1.DocumentID = r.res.DocumentID
		}
		out = s1
		sr.Metadata = map[string]any{
			"source":     "extractor",
			"page_count": s1.Metadata.PageCount,
			"tables":     len(s1.Tables),
			"is_scanned": s1.Metadata.IsScanned,
		}
		return nil
	})
	if err == nil && out != nil {
		r.saveCheckpoint(ctx, StateStage1, out)
	}
	return out, err
}

// resumeStage2 returns the stage 2 checkpoint of an earlier attempt, or nil.
func (r *run) resumeStage2(ctx context.Context) *mapped {
	cp := r.loadCheckpoint(ctx, StateStage2)
	if cp == nil {
		return nil
	}
	var m mapped
	if err := json.Unmarshal(cp.Data, &m); err != nil {
		r.log.Warn("pipeline: ignoring unreadable stage 2 checkpoint", zap.Error(err))
		return nil
	}
	m.Output.RawText = m.RawText

	r.log.Info("pipeline: resuming from checkpoint", zap.Time("checkpoint_at", cp.CreatedAt))
	for _, stage := range []State{StateStage1, StateStage2} {
		r.stages = append(r.stages, model.StageResult{
			Name:     string(stage),
			Status:   model.StageStatusSkipped,
			Metadata: map[string]any{"source": "checkpoint"},
		})
		r.o.emit(Event{Stage: stage, Status: model.StageStatusSkipped, DocumentID: r.res.DocumentID})
	}
	return &m
}

func (r *run) stage2(ctx context.Context, s1 *model.Stage1Output) (*mapped, error) {
	var out *mapped
	err := r.track(StateStage2, func(sr *model.StageResult) error {
		cls, err := r.o.classifier.Classify(ctx, s1)
		if err != nil {
			return eris.Wrap(err, "pipeline: classify")
		}

		data, err := r.o.mapper.Map(ctx, s1, cls)
		if err != nil {
			return eris.Wrap(err, "pipeline: map")
		}
		if data.DocumentID == "" {
			data.DocumentID = r.res.DocumentID
		}

		summary := covid.Detect(&data, s1.RawText, cls.TaxYear)
		if err := covid.Corroborate(ctx, r.o.loans, data.CompanyInfo, &summary); err != nil {
			if ctx.Err() != nil {
				return err
			}
			r.warn(fmt.Sprintf("PPP loan lookup failed: %v", err))
		}
		if summary.Adjustments != (model.CovidAdjustments{}) {
			adj := summary.Adjustments
			data.CovidAdjustments = &adj
		}

		out = &mapped{
			Output: model.Stage2Output{
				DocumentID:     r.res.DocumentID,
				Classification: cls,
				Data:           data,
				RawText:        s1.RawText,
			},
			RawText: s1.RawText,
			Covid:   summary,
		}
		sr.Metadata = map[string]any{
			"document_type": string(cls.DocumentType),
			"confidence":    string(cls.Confidence),
			"source":        cls.Source,
			"tax_year":      cls.TaxYear,
		}
		return nil
	})
	if err == nil {
		r.saveCheckpoint(ctx, StateStage2, out)
	}
	return out, err
}

func (r *run) stage3(ctx context.Context, m *mapped) (*model.FinalExtractionOutput, error) {
	var out *model.FinalExtractionOutput
	err := r.track(StateStage3, func(sr *model.StageResult) error {
		in := &m.Output
		data := in.Data.Clone()
		report := r.o.engine.Report(&data, m.RawText)

		enrichment, outcome, err := r.enrich(ctx, in, report.Results)
		if err != nil {
			return err
		}
		if enrichment != nil && len(enrichment.AdditionalFlags) > 0 {
			report.Results = append(report.Results, enrichment.AdditionalFlags...)
			report.Summary = validation.Summarize(report.Results)
		}
		if outcome == aiFailed {
			sr.Status = model.StageStatusDegraded
		}

		out = r.assemble(in, m.Covid, report, enrichment)
		out.Processing.Degraded = outcome == aiFailed
		Rescore(out, in)

		sr.Metadata = map[string]any{
			"ai_validation": outcome,
			"results":       len(report.Results),
			"blockers":      len(report.Summary.Blockers),
			"confidence":    out.Confidence.Overall,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.fillProcessing(&out.Processing)
	return out, nil
}

// enrich runs AI-assisted validation when enabled and worthwhile. Failures
// other than cancellation degrade to the rule-only result.
func (r *run) enrich(ctx context.Context, in *model.Stage2Output, results []model.ValidationResult) (*model.AIEnrichment, string, error) {
	if !r.o.cfg.AIValidation || r.o.ai == nil {
		return nil, aiDisabled, nil
	}

	quick := confidence.QuickConfidenceCheck(in)
	if !quick.Proceed {
		r.warn("AI validation skipped: " + quick.Reason)
		return nil, aiBlocked, nil
	}
	if len(quick.Cautions) > 0 {
		r.log.Debug("pipeline: quick check cautions", zap.Strings("cautions", quick.Cautions))
	}

	actx, cancel := r.o.stageContext(ctx)
	defer cancel()
	data := in.Data.Clone()
	enrichment, err := r.o.ai.Validate(actx, ai.ValidateRequest{
		DocumentID:     in.DocumentID,
		Classification: in.Classification,
		Data:           &data,
		RawText:        in.RawText,
		Results:        results,
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, "", eris.Wrap(err, "pipeline: ai validation")
	case err != nil:
		r.warn(fmt.Sprintf("AI validation failed, returning rule-based result: %v", err))
		return nil, aiFailed, nil
	case enrichment == nil:
		return nil, aiDisabled, nil
	}
	return enrichment, aiApplied, nil
}

func (r *run) assemble(in *model.Stage2Output, summary model.CovidSummary, report model.ValidationReport, enrichment *model.AIEnrichment) *model.FinalExtractionOutput {
	year := in.Data.TaxYear
	if year == 0 {
		year = in.Classification.TaxYear
	}
	out := &model.FinalExtractionOutput{
		ReportID:       r.reportID,
		DocumentID:     r.res.DocumentID,
		DocumentType:   in.Classification.DocumentType,
		EntityType:     in.Data.CompanyInfo.EntityType,
		CompanyInfo:    in.Data.CompanyInfo,
		Classification: in.Classification,
		FinancialData:  map[int]model.StructuredFinancialData{year: in.Data.Clone()},
		Validation:     report,
		AIEnrichment:   enrichment,
		ExtractedAt:    r.o.now(),
	}
	if summary.IsCovidRelevantYear {
		out.CovidAdjustments = map[int]model.CovidSummary{year: summary}
	}
	return out
}

func (r *run) fillProcessing(p *model.ProcessingMetadata) {
	p.Stages = append([]model.StageResult(nil), r.stages...)
	p.AICalls, p.TokenUsage = r.meter.Snapshot()
	p.DurationMS = time.Since(r.start).Milliseconds()
	p.Warnings = append([]string{}, r.res.Warnings...)
}

// Rescore recomputes confidence and the valuation gate from the output's
// validation results, cross-document results, AI adjustment and degradation.
func Rescore(out *model.FinalExtractionOutput, in *model.Stage2Output) {
	score := confidence.Score(in, out.Validation.Results, out.CrossDocument)
	if e := out.AIEnrichment; e != nil && e.ConfidenceAdjustment != 0 {
		score = confidence.Adjust(score, e.ConfidenceAdjustment,
			fmt.Sprintf("AI validation adjustment: %+d", e.ConfidenceAdjustment))
	}
	if out.Processing.Degraded {
		score = confidence.Degrade(score)
	}
	out.Confidence = score
	out.ReadyForValuation = len(out.Validation.Summary.Blockers) == 0 &&
		score.Recommendation == model.RecommendReady
}

func (r *run) loadCheckpoint(ctx context.Context, stage State) *model.Checkpoint {
	if !r.o.cfg.Checkpoints || r.o.store == nil {
		return nil
	}
	cp, err := r.o.store.LoadCheckpoint(ctx, r.reportID, r.res.DocumentID, string(stage))
	if err != nil {
		r.log.Warn("pipeline: failed to load checkpoint", zap.String("stage", string(stage)), zap.Error(err))
		return nil
	}
	return cp
}

func (r *run) saveCheckpoint(ctx context.Context, stage State, v any) {
	if !r.o.cfg.Checkpoints || r.o.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Warn("pipeline: failed to encode checkpoint", zap.String("stage", string(stage)), zap.Error(err))
		return
	}
	err = r.o.store.SaveCheckpoint(context.WithoutCancel(ctx), model.Checkpoint{
		ReportID:   r.reportID,
		DocumentID: r.res.DocumentID,
		Stage:      string(stage),
		Data:       data,
	})
	if err != nil {
		r.log.Warn("pipeline: failed to save checkpoint", zap.String("stage", string(stage)), zap.Error(err))
	}
}
