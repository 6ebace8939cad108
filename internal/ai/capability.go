// Package ai defines the AI capability used for classification fallback and
// Stage 3 enrichment, with an Anthropic-backed implementation.
package ai

import (
	"context"
	"sync"

	"github.com/sells-group/finextract/internal/model"
)

// ClassifyRequest carries the document content sent for classification.
type ClassifyRequest struct {
	DocumentID string
	RawText    string
	Tables     []model.Table
}

// ValidateRequest carries a mapped document and its rule results for
// AI-assisted review.
type ValidateRequest struct {
	DocumentID     string
	Classification model.DocumentClassification
	Data           *model.StructuredFinancialData
	RawText        string
	Results        []model.ValidationResult
}

// Capability is the narrow contract the engine uses to reach an AI model.
// Implementations must degrade unparseable classification responses to an
// UNKNOWN/low result instead of returning an error.
type Capability interface {
	Classify(ctx context.Context, req ClassifyRequest) (model.DocumentClassification, error)
	Validate(ctx context.Context, req ValidateRequest) (*model.AIEnrichment, error)
}

// Meter accumulates AI calls and token usage. The pipeline attaches one per
// document so usage can be attributed in processing metadata.
type Meter struct {
	mu    sync.Mutex
	calls int
	usage model.TokenUsage
}

// Record adds one call with its usage.
func (m *Meter) Record(u model.TokenUsage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.usage.Add(u)
}

// Snapshot returns the call count and accumulated usage.
func (m *Meter) Snapshot() (int, model.TokenUsage) {
	if m == nil {
		return 0, model.TokenUsage{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.usage
}

type meterKey struct{}

// WithMeter returns a context that records AI usage into m.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom returns the meter attached to ctx, or nil.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}
