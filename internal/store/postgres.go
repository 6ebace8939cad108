package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/finextract/internal/db"
	"github.com/sells-group/finextract/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close leaves the pool open.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that share it,
// such as the PPP loan lookup.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	report_id   TEXT NOT NULL,
	document_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (report_id, document_id)
);

CREATE TABLE IF NOT EXISTS extractions (
	id                  TEXT PRIMARY KEY,
	report_id           TEXT NOT NULL,
	document_id         TEXT NOT NULL,
	data                JSONB NOT NULL,
	ready_for_valuation BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (report_id, document_id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	report_id   TEXT NOT NULL,
	document_id TEXT NOT NULL,
	stage       TEXT NOT NULL,
	data        BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (report_id, document_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_documents_report ON documents(report_id);
CREATE INDEX IF NOT EXISTS idx_extractions_report ON extractions(report_id);
CREATE INDEX IF NOT EXISTS idx_extractions_ready ON extractions(report_id) WHERE ready_for_valuation;
`

var (
	documentUpsert = db.UpsertConfig{
		Table:        "documents",
		Columns:      []string{"id", "report_id", "document_id", "status", "error", "created_at", "updated_at"},
		ConflictKeys: []string{"report_id", "document_id"},
		UpdateCols:   []string{"status", "error", "updated_at"},
	}
	extractionUpsert = db.UpsertConfig{
		Table:        "extractions",
		Columns:      []string{"id", "report_id", "document_id", "data", "ready_for_valuation", "created_at", "updated_at"},
		ConflictKeys: []string{"report_id", "document_id"},
		UpdateCols:   []string{"data", "ready_for_valuation", "updated_at"},
	}
	checkpointUpsert = db.UpsertConfig{
		Table:        "checkpoints",
		Columns:      []string{"report_id", "document_id", "stage", "data", "created_at"},
		ConflictKeys: []string{"report_id", "document_id", "stage"},
	}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, reportID, documentID string, status model.ExtractionStatus, errMsg string) error {
	now := time.Now().UTC()
	err := db.Upsert(ctx, s.pool, documentUpsert,
		uuid.New().String(), reportID, documentID, string(status), errMsg, now, now)
	return eris.Wrapf(err, "postgres: update status %s/%s", reportID, documentID)
}

func (s *PostgresStore) Save(ctx context.Context, reportID, documentID string, out *model.FinalExtractionOutput) error {
	if out == nil {
		return eris.New("postgres: nil extraction")
	}
	data, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	if err := db.Upsert(ctx, tx, extractionUpsert,
		uuid.New().String(), reportID, documentID, data, out.ReadyForValuation, now, now); err != nil {
		return eris.Wrapf(err, "postgres: save extraction %s/%s", reportID, documentID)
	}
	if err := db.Upsert(ctx, tx, documentUpsert,
		uuid.New().String(), reportID, documentID, string(model.StatusCompleted), "", now, now); err != nil {
		return eris.Wrapf(err, "postgres: mark completed %s/%s", reportID, documentID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save")
}

func (s *PostgresStore) Load(ctx context.Context, reportID string) (*model.ReportState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, status, error, updated_at FROM documents WHERE report_id = $1 ORDER BY created_at, document_id`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load documents %s", reportID)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DocumentState, error) {
		var d model.DocumentState
		var status string
		err := row.Scan(&d.DocumentID, &status, &d.Error, &d.UpdatedAt)
		d.Status = model.ExtractionStatus(status)
		return d, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan documents")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT data FROM extractions WHERE report_id = $1 ORDER BY created_at, document_id`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load extractions %s", reportID)
	}
	outs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.FinalExtractionOutput, error) {
		var data []byte
		var out model.FinalExtractionOutput
		if err := row.Scan(&data); err != nil {
			return out, err
		}
		return out, json.Unmarshal(data, &out)
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan extractions")
	}
	if len(outs) == 0 {
		outs = nil
	}
	return buildState(reportID, docs, outs), nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	err := db.Upsert(ctx, s.pool, checkpointUpsert, cp.ReportID, cp.DocumentID, cp.Stage, cp.Data, cp.CreatedAt)
	return eris.Wrapf(err, "postgres: save checkpoint %s/%s/%s", cp.ReportID, cp.DocumentID, cp.Stage)
}

// LoadCheckpoint returns nil without error when no checkpoint exists.
func (s *PostgresStore) LoadCheckpoint(ctx context.Context, reportID, documentID, stage string) (*model.Checkpoint, error) {
	cp := model.Checkpoint{ReportID: reportID, DocumentID: documentID, Stage: stage}
	err := s.pool.QueryRow(ctx,
		`SELECT data, created_at FROM checkpoints WHERE report_id = $1 AND document_id = $2 AND stage = $3`,
		reportID, documentID, stage,
	).Scan(&cp.Data, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load checkpoint %s/%s/%s", reportID, documentID, stage)
	}
	return &cp, nil
}

func (s *PostgresStore) DeleteCheckpoints(ctx context.Context, reportID, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE report_id = $1 AND document_id = $2`, reportID, documentID)
	return eris.Wrapf(err, "postgres: delete checkpoints %s/%s", reportID, documentID)
}
