package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/finextract/internal/crossdoc"
	"github.com/sells-group/finextract/internal/model"
)

// BatchResult is the outcome of processing a report's documents.
type BatchResult struct {
	ReportID      string                           `json:"report_id"`
	Results       []*Result                        `json:"results"`
	CrossDocument []model.CrossDocValidationResult `json:"cross_document"`
	Completed     int                              `json:"completed"`
	Failed        int                              `json:"failed"`
	Fallbacks     int                              `json:"vision_fallbacks"`
}

// Outputs returns the final outputs of the completed documents in input order.
func (b *BatchResult) Outputs() []*model.FinalExtractionOutput {
	var out []*model.FinalExtractionOutput
	for _, r := range b.Results {
		if r != nil && r.Output != nil {
			out = append(out, r.Output)
		}
	}
	return out
}

// ProcessDocuments runs every document of a report, at most MaxConcurrency at
// a time (sequentially by default), then validates the completed documents
// against each other and rescores them. A failed document does not stop the
// others; the error is non-nil only when ctx ends.
func (o *Orchestrator) ProcessDocuments(ctx context.Context, reportID string, docs []Document) (*BatchResult, error) {
	log := zap.L().With(zap.String("report_id", reportID))
	log.Info("pipeline: processing report", zap.Int("documents", len(docs)))

	results := make([]*Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.MaxConcurrency, 1))

	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.ProcessDocument(gctx, reportID, doc)
			results[i] = res
			if err != nil && res.State == StateCancelled {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &BatchResult{ReportID: reportID, Results: results}, eris.Wrap(err, "pipeline: process report")
	}

	batch := &BatchResult{ReportID: reportID, Results: results}
	for _, r := range results {
		switch r.State {
		case StateComplete:
			batch.Completed++
		case StateVisionFallback:
			batch.Fallbacks++
		default:
			batch.Failed++
		}
	}

	batch.CrossDocument = o.ApplyCrossDocument(ctx, reportID, results)

	log.Info("pipeline: report complete",
		zap.Int("completed", batch.Completed),
		zap.Int("failed", batch.Failed),
		zap.Int("vision_fallbacks", batch.Fallbacks),
		zap.Int("cross_document_results", len(batch.CrossDocument)),
	)
	return batch, nil
}

// ApplyCrossDocument validates the completed results against each other,
// attaches the comparisons involving each document, rescores it and saves
// the updated output. It returns every comparison with a discrepancy.
func (o *Orchestrator) ApplyCrossDocument(ctx context.Context, reportID string, results []*Result) []model.CrossDocValidationResult {
	var datasets []model.StructuredFinancialData
	for _, r := range results {
		if r == nil || r.Output == nil || r.Stage2 == nil {
			continue
		}
		datasets = append(datasets, r.Stage2.Data)
	}
	if len(datasets) < 2 {
		return []model.CrossDocValidationResult{}
	}

	cross := crossdoc.Validate(datasets)
	for _, r := range results {
		if r == nil || r.Output == nil || r.Stage2 == nil {
			continue
		}
		mine := crossdoc.ForDocument(cross, r.DocumentID)
		if len(mine) == 0 {
			continue
		}
		r.Output.CrossDocument = mine
		Rescore(r.Output, r.Stage2)

		if o.store != nil {
			if err := o.store.Save(context.WithoutCancel(ctx), reportID, r.DocumentID, r.Output); err != nil {
				zap.L().Warn("pipeline: failed to save cross-document update",
					zap.String("report_id", reportID),
					zap.String("document_id", r.DocumentID),
					zap.Error(err),
				)
			}
		}
	}
	return cross
}

// CrossValidateOutputs runs cross-document validation over stored outputs,
// using each output's financial data for every year it holds.
func CrossValidateOutputs(outputs []model.FinalExtractionOutput) []model.CrossDocValidationResult {
	var datasets []model.StructuredFinancialData
	for i := range outputs {
		for _, y := range outputs[i].Years() {
			d := outputs[i].FinancialData[y]
			if d.DocumentID == "" {
				d.DocumentID = outputs[i].DocumentID
			}
			datasets = append(datasets, d)
		}
	}
	return crossdoc.Validate(datasets)
}

// MergeByYear builds one dataset per tax year from several outputs, taking
// each year's primary document: a tax return over a financial statement,
// never a K-1.
func MergeByYear(outputs []*model.FinalExtractionOutput) map[int]model.StructuredFinancialData {
	byYear := map[int][]*model.StructuredFinancialData{}
	for _, out := range outputs {
		if out == nil {
			continue
		}
		for _, y := range out.Years() {
			if y == 0 {
				continue
			}
			d := out.FinancialData[y]
			byYear[y] = append(byYear[y], &d)
		}
	}

	merged := make(map[int]model.StructuredFinancialData, len(byYear))
	for y, docs := range byYear {
		if p := crossdoc.PrimaryDocument(docs); p != nil {
			merged[y] = p.Clone()
		}
	}
	return merged
}
