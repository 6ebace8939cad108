// Package pipeline runs documents through extraction, classification and
// mapping, then validation and scoring, producing a FinalExtractionOutput.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/ai"
	"github.com/sells-group/finextract/internal/classify"
	"github.com/sells-group/finextract/internal/config"
	"github.com/sells-group/finextract/internal/covid"
	"github.com/sells-group/finextract/internal/mapper"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/resilience"
	"github.com/sells-group/finextract/internal/store"
	"github.com/sells-group/finextract/internal/validation"
	"github.com/sells-group/finextract/pkg/extractor"
)

// State is a position in the per-document state machine.
type State string

const (
	StateStage1         State = "stage1"
	StateStage2         State = "stage2"
	StateStage3         State = "stage3"
	StateComplete       State = "complete"
	StateError          State = "error"
	StateVisionFallback State = "vision_fallback"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateError, StateVisionFallback, StateCancelled:
		return true
	}
	return false
}

// Config controls the orchestrator.
type Config struct {
	MaxAttempts             int
	InitialBackoff          time.Duration
	BackoffMultiplier       float64
	StageTimeout            time.Duration
	MinScannedOCRConfidence float64
	MinTextChars            int
	MaxConcurrency          int
	AIValidation            bool
	Checkpoints             bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:             4,
		InitialBackoff:          time.Second,
		BackoffMultiplier:       3,
		StageTimeout:            5 * time.Minute,
		MinScannedOCRConfidence: 0.3,
		MinTextChars:            100,
		MaxConcurrency:          1,
		AIValidation:            true,
		Checkpoints:             true,
	}
}

// ConfigFrom converts application configuration.
func ConfigFrom(c config.PipelineConfig) Config {
	return Config{
		MaxAttempts:             c.MaxAttempts,
		InitialBackoff:          time.Duration(c.InitialBackoffMs) * time.Millisecond,
		BackoffMultiplier:       c.BackoffMultiplier,
		StageTimeout:            time.Duration(c.StageTimeoutSecs) * time.Second,
		MinScannedOCRConfidence: c.MinScannedOCRConfidence,
		MinTextChars:            c.MinTextChars,
		MaxConcurrency:          c.MaxConcurrency,
		AIValidation:            c.AIValidation,
		Checkpoints:             c.Checkpoints,
	}
}

// Document is one input to the pipeline. Either PDF bytes for the extraction
// service or an already extracted Stage 1 output.
type Document struct {
	DocumentID string
	Filename   string
	PDF        []byte
	Stage1     *model.Stage1Output
}

func (d Document) id() string {
	switch {
	case d.DocumentID != "":
		return d.DocumentID
	case d.Stage1 != nil && d.Stage1.DocumentID != "":
		return d.Stage1.DocumentID
	}
	return uuid.New().String()
}

// Result is the outcome of processing one document. Stage1 is kept whenever
// extraction succeeded, so a failed Stage 2 can be diagnosed and resumed.
type Result struct {
	ReportID             string                       `json:"report_id"`
	DocumentID           string                       `json:"document_id"`
	State                State                        `json:"state"`
	Success              bool                         `json:"success"`
	Output               *model.FinalExtractionOutput `json:"output,omitempty"`
	Stage1               *model.Stage1Output          `json:"stage1,omitempty"`
	Stage2               *model.Stage2Output          `json:"-"`
	Error                string                       `json:"error,omitempty"`
	ErrorKind            resilience.ErrorKind         `json:"error_kind,omitempty"`
	VisionFallbackReason string                       `json:"vision_fallback_reason,omitempty"`
	Warnings             []string                     `json:"warnings,omitempty"`
}

// Orchestrator drives documents through the stages.
type Orchestrator struct {
	cfg        Config
	extractor  extractor.Client
	ai         ai.Capability
	loans      covid.LoanFinder
	store      store.Store
	mapper     mapper.Mapper
	engine     *validation.Engine
	classifier *classify.Classifier
	progress   ProgressFunc
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExtractor sets the Stage 1 extraction client.
func WithExtractor(c extractor.Client) Option {
	return func(o *Orchestrator) { o.extractor = c }
}

// WithAI sets the capability used for classification fallback and enrichment.
func WithAI(c ai.Capability) Option {
	return func(o *Orchestrator) { o.ai = c }
}

// WithLoanFinder enables PPP loan corroboration for relief years.
func WithLoanFinder(f covid.LoanFinder) Option {
	return func(o *Orchestrator) { o.loans = f }
}

// WithStore persists statuses, outputs and checkpoints.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMapper replaces the rule-based mapper.
func WithMapper(m mapper.Mapper) Option {
	return func(o *Orchestrator) { o.mapper = m }
}

// WithEngine replaces the default rule engine.
func WithEngine(e *validation.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithSleep overrides the wait between extraction retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// New creates an Orchestrator.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		mapper: mapper.NewRuleMapper(),
		engine: validation.NewDefaultEngine(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	var fallback classify.Fallback
	if o.ai != nil {
		fallback = o.ai
	}
	o.classifier = classify.New(fallback)
	return o
}

// run carries the mutable state of one document through the stages.
type run struct {
	o        *Orchestrator
	reportID string
	res      *Result
	log      *zap.Logger
	meter    *ai.Meter
	start    time.Time
	stages   []model.StageResult
}

// ProcessDocument runs one document to a terminal state. The returned Result
// is never nil. The error is non-nil for the error and cancelled states; a
// vision fallback is not an error.
func (o *Orchestrator) ProcessDocument(ctx context.Context, reportID string, doc Document) (*Result, error) {
	docID := doc.id()
	meter := &ai.Meter{}
	ctx = ai.WithMeter(ctx, meter)

	r := &run{
		o:        o,
		reportID: reportID,
		res:      &Result{ReportID: reportID, DocumentID: docID, State: StateStage1},
		log:      zap.L().With(zap.String("report_id", reportID), zap.String("document_id", docID)),
		meter:    meter,
		start:    time.Now(),
	}
	r.log.Info("pipeline: starting document")
	o.setStatus(ctx, reportID, docID, model.StatusProcessing, "")

	// Resume from the latest completed stage when a checkpoint exists.
	s2 := r.resumeStage2(ctx)
	if s2 == nil {
		s1, err := r.stage1(ctx, doc)
		if err != nil {
			return r.fail(ctx, StateStage1, err)
		}
		r.res.Stage1 = s1

		if reason, bypass := o.needsVision(s1); bypass {
			return r.visionFallback(ctx, reason)
		}

		if err := ctx.Err(); err != nil {
			return r.fail(ctx, StateStage2, err)
		}
		s2, err = r.stage2(ctx, s1)
		if err != nil {
			return r.fail(ctx, StateStage2, err)
		}
	}
	r.res.Stage2 = &s2.Output

	if err := ctx.Err(); err != nil {
		return r.fail(ctx, StateStage3, err)
	}
	out, err := r.stage3(ctx, s2)
	if err != nil {
		return r.fail(ctx, StateStage3, err)
	}
	return r.complete(ctx, out)
}

// needsVision reports whether a scanned document carries too little text to
// process and should go to premium extraction instead.
func (o *Orchestrator) needsVision(s1 *model.Stage1Output) (string, bool) {
	if !s1.Metadata.IsScanned {
		return "", false
	}
	if c := s1.Metadata.OCRConfidence; c != nil && *c < o.cfg.MinScannedOCRConfidence {
		return fmt.Sprintf("scanned document with OCR confidence %.2f below %.2f", *c, o.cfg.MinScannedOCRConfidence), true
	}
	if n := s1.TextLength(); n < o.cfg.MinTextChars {
		return fmt.Sprintf("scanned document with %d characters of text (minimum %d)", n, o.cfg.MinTextChars), true
	}
	return "", false
}

// track runs fn as a named stage, recording its duration and outcome.
func (r *run) track(stage State, fn func(sr *model.StageResult) error) error {
	r.res.State = stage
	r.o.emit(Event{Stage: stage, Status: model.StageStatusRunning, DocumentID: r.res.DocumentID})

	sr := model.StageResult{Name: string(stage)}
	start := time.Now()
	err := fn(&sr)
	sr.Duration = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		sr.Status = model.StageStatusFailed
		sr.Error = err.Error()
		r.log.Error("pipeline: stage failed",
			zap.String("stage", string(stage)),
			zap.Int64("duration_ms", sr.Duration),
			zap.Error(err),
		)
	case sr.Status == "":
		sr.Status = model.StageStatusComplete
		fallthrough
	default:
		r.log.Info("pipeline: stage finished",
			zap.String("stage", string(stage)),
			zap.String("status", string(sr.Status)),
			zap.Int64("duration_ms", sr.Duration),
		)
	}

	r.stages = append(r.stages, sr)
	r.o.emit(Event{Stage: stage, Status: sr.Status, DocumentID: r.res.DocumentID, Message: sr.Error})
	return err
}

func (r *run) warn(msg string) {
	r.res.Warnings = append(r.res.Warnings, msg)
	r.log.Warn("pipeline: " + msg)
}

func (r *run) fail(ctx context.Context, stage State, err error) (*Result, error) {
	state := StateError
	if ctx.Err() != nil {
		state = StateCancelled
		err = eris.Wrapf(ctx.Err(), "pipeline: cancelled during %s", stage)
	}
	r.res.State = state
	r.res.Error = err.Error()
	r.res.ErrorKind = resilience.ClassifyError(err)

	r.log.Error("pipeline: document failed",
		zap.String("stage", string(stage)),
		zap.String("state", string(state)),
		zap.String("error_kind", string(r.res.ErrorKind)),
		zap.Error(err),
	)
	r.o.setStatus(ctx, r.reportID, r.res.DocumentID, model.StatusFailed, err.Error())
	r.o.emit(Event{Stage: state, Status: model.StageStatusFailed, DocumentID: r.res.DocumentID, Message: err.Error()})
	return r.res, err
}

func (r *run) visionFallback(ctx context.Context, reason string) (*Result, error) {
	r.res.State = StateVisionFallback
	r.res.VisionFallbackReason = reason
	r.log.Info("pipeline: vision fallback recommended", zap.String("reason", reason))

	// Pending: the document awaits premium extraction, it has not failed.
	r.o.setStatus(ctx, r.reportID, r.res.DocumentID, model.StatusPending, "vision fallback recommended: "+reason)
	r.o.emit(Event{Stage: StateVisionFallback, Status: model.StageStatusSkipped, DocumentID: r.res.DocumentID, Message: reason})
	return r.res, nil
}

func (r *run) complete(ctx context.Context, out *model.FinalExtractionOutput) (*Result, error) {
	r.res.Output = out
	r.res.State = StateComplete
	r.res.Success = true

	if r.o.store != nil {
		saveCtx := context.WithoutCancel(ctx)
		if err := r.o.store.Save(saveCtx, r.reportID, r.res.DocumentID, out); err != nil {
			// The output is still returned, but the stored status must not
			// stay processing.
			msg := fmt.Sprintf("failed to save extraction: %v", err)
			r.warn(msg)
			r.o.setStatus(ctx, r.reportID, r.res.DocumentID, model.StatusFailed, msg)
		} else if err := r.o.store.DeleteCheckpoints(saveCtx, r.reportID, r.res.DocumentID); err != nil {
			r.log.Warn("pipeline: failed to delete checkpoints", zap.Error(err))
		}
	}

	r.log.Info("pipeline: document complete",
		zap.Int("confidence", out.Confidence.Overall),
		zap.String("recommendation", string(out.Confidence.Recommendation)),
		zap.Bool("ready_for_valuation", out.ReadyForValuation),
		zap.Int64("duration_ms", out.Processing.DurationMS),
	)
	r.o.emit(Event{Stage: StateComplete, Status: model.StageStatusComplete, DocumentID: r.res.DocumentID})
	return r.res, nil
}

// setStatus records a document status. Store failures are logged only.
func (o *Orchestrator) setStatus(ctx context.Context, reportID, documentID string, status model.ExtractionStatus, errMsg string) {
	if o.store == nil {
		return
	}
	if err := o.store.UpdateStatus(context.WithoutCancel(ctx), reportID, documentID, status, errMsg); err != nil {
		zap.L().Warn("pipeline: failed to update status",
			zap.String("report_id", reportID),
			zap.String("document_id", documentID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}
