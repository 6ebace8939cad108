// Package store persists per-document extraction status, final outputs and
// stage checkpoints for reports.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finextract/internal/db"
	"github.com/sells-group/finextract/internal/model"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store defines the persistence contract of the extraction engine.
type Store interface {
	// Load returns the report's documents, their aggregated status and all
	// saved extractions. An unknown report yields status none.
	Load(ctx context.Context, reportID string) (*model.ReportState, error)
	// Save stores the final output and marks the document completed.
	Save(ctx context.Context, reportID, documentID string, out *model.FinalExtractionOutput) error
	// UpdateStatus records a document status, creating the row if needed.
	UpdateStatus(ctx context.Context, reportID, documentID string, status model.ExtractionStatus, errMsg string) error

	// Checkpoints
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	LoadCheckpoint(ctx context.Context, reportID, documentID, stage string) (*model.Checkpoint, error)
	DeleteCheckpoints(ctx context.Context, reportID, documentID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLite(cfg.DatabaseURL)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// buildState aggregates the report status. Extractions are kept only for
// documents whose current status is completed; a document reprocessed into
// failure or pending keeps its old row but must not surface it.
func buildState(reportID string, docs []model.DocumentState, outs []model.FinalExtractionOutput) *model.ReportState {
	if docs == nil {
		docs = []model.DocumentState{}
	}
	completed := make(map[string]bool, len(docs))
	for _, d := range docs {
		completed[d.DocumentID] = d.Status == model.StatusCompleted
	}
	var kept []model.FinalExtractionOutput
	for _, out := range outs {
		if completed[out.DocumentID] {
			kept = append(kept, out)
		}
	}
	return &model.ReportState{
		ReportID:    reportID,
		Status:      model.AggregateStatus(docs),
		Documents:   docs,
		Extractions: kept,
	}
}
