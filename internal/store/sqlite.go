package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/finextract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "finextract.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	report_id   TEXT NOT NULL,
	document_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE (report_id, document_id)
);

CREATE TABLE IF NOT EXISTS extractions (
	id                  TEXT PRIMARY KEY,
	report_id           TEXT NOT NULL,
	document_id         TEXT NOT NULL,
	data                TEXT NOT NULL,
	ready_for_valuation INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL,
	UNIQUE (report_id, document_id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	report_id   TEXT NOT NULL,
	document_id TEXT NOT NULL,
	stage       TEXT NOT NULL,
	data        BLOB NOT NULL,
	created_at  DATETIME NOT NULL,
	PRIMARY KEY (report_id, document_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_documents_report ON documents(report_id);
CREATE INDEX IF NOT EXISTS idx_extractions_report ON extractions(report_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, reportID, documentID string, status model.ExtractionStatus, errMsg string) error {
	return s.updateStatus(ctx, s.db, reportID, documentID, status, errMsg)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) updateStatus(ctx context.Context, ex sqlExecer, reportID, documentID string, status model.ExtractionStatus, errMsg string) error {
	now := time.Now().UTC()
	_, err := ex.ExecContext(ctx,
		`INSERT INTO documents (id, report_id, document_id, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (report_id, document_id) DO UPDATE SET
		   status = excluded.status, error = excluded.error, updated_at = excluded.updated_at`,
		uuid.New().String(), reportID, documentID, string(status), errMsg, now, now,
	)
	return eris.Wrapf(err, "sqlite: update status %s/%s", reportID, documentID)
}

func (s *SQLiteStore) Save(ctx context.Context, reportID, documentID string, out *model.FinalExtractionOutput) error {
	if out == nil {
		return eris.New("sqlite: nil extraction")
	}
	data, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO extractions (id, report_id, document_id, data, ready_for_valuation, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (report_id, document_id) DO UPDATE SET
		   data = excluded.data, ready_for_valuation = excluded.ready_for_valuation, updated_at = excluded.updated_at`,
		uuid.New().String(), reportID, documentID, string(data), out.ReadyForValuation, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save extraction %s/%s", reportID, documentID)
	}
	if err := s.updateStatus(ctx, tx, reportID, documentID, model.StatusCompleted, ""); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save")
}

func (s *SQLiteStore) Load(ctx context.Context, reportID string) (*model.ReportState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, status, error, updated_at FROM documents
		 WHERE report_id = ? ORDER BY created_at, document_id`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load documents %s", reportID)
	}
	var docs []model.DocumentState
	for rows.Next() {
		var d model.DocumentState
		if err := rows.Scan(&d.DocumentID, &d.Status, &d.Error, &d.UpdatedAt); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, d)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate documents")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT data FROM extractions WHERE report_id = ? ORDER BY created_at, document_id`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load extractions %s", reportID)
	}
	defer rows.Close() //nolint:errcheck

	var outs []model.FinalExtractionOutput
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		var out model.FinalExtractionOutput
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extraction")
		}
		outs = append(outs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate extractions")
	}
	return buildState(reportID, docs, outs), nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (report_id, document_id, stage, data, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (report_id, document_id, stage) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		cp.ReportID, cp.DocumentID, cp.Stage, cp.Data, cp.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s/%s/%s", cp.ReportID, cp.DocumentID, cp.Stage)
}

// LoadCheckpoint returns nil without error when no checkpoint exists.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, reportID, documentID, stage string) (*model.Checkpoint, error) {
	cp := model.Checkpoint{ReportID: reportID, DocumentID: documentID, Stage: stage}
	err := s.db.QueryRowContext(ctx,
		`SELECT data, created_at FROM checkpoints WHERE report_id = ? AND document_id = ? AND stage = ?`,
		reportID, documentID, stage,
	).Scan(&cp.Data, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load checkpoint %s/%s/%s", reportID, documentID, stage)
	}
	return &cp, nil
}

func (s *SQLiteStore) DeleteCheckpoints(ctx context.Context, reportID, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE report_id = ? AND document_id = ?`,
		reportID, documentID,
	)
	return eris.Wrapf(err, "sqlite: delete checkpoints %s/%s", reportID, documentID)
}
