package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finextract/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "documents" .* ON CONFLICT \("report_id", "document_id"\) DO UPDATE SET "status" = EXCLUDED."status"`).
		WithArgs(pgxmock.AnyArg(), "r1", "d1", "failed", "encrypted pdf", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpdateStatus(context.Background(), "r1", "d1", model.StatusFailed, "encrypted pdf"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusError(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "documents"`).WillReturnError(assert.AnError)
	err := s.UpdateStatus(context.Background(), "r1", "d1", model.StatusPending, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update status r1/d1")
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "extractions"`).
		WithArgs(pgxmock.AnyArg(), "r1", "d1", pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "documents"`).
		WithArgs(pgxmock.AnyArg(), "r1", "d1", "completed", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), "r1", "d1", sampleOutput("r1", "d1")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRollsBack(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "extractions"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.Save(context.Background(), "r1", "d1", sampleOutput("r1", "d1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save extraction r1/d1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	data, err := json.Marshal(sampleOutput("r1", "d1"))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT document_id, status, error, updated_at FROM documents WHERE report_id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"document_id", "status", "error", "updated_at"}).
			AddRow("d1", "completed", "", now).
			AddRow("d2", "processing", "", now))
	mock.ExpectQuery(`SELECT data FROM extractions WHERE report_id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	require.Len(t, got.Documents, 2)
	require.Len(t, got.Extractions, 1)
	assert.Equal(t, model.DocForm1120S, got.Extractions[0].DocumentType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSkipsExtractionOfFailedDocument(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	stale, err := json.Marshal(sampleOutput("r1", "d1"))
	require.NoError(t, err)
	current, err := json.Marshal(sampleOutput("r1", "d2"))
	require.NoError(t, err)

	mock.ExpectQuery(`FROM documents`).WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"document_id", "status", "error", "updated_at"}).
			AddRow("d1", "failed", "extraction timed out", now).
			AddRow("d2", "completed", "", now))
	mock.ExpectQuery(`FROM extractions`).WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(stale).AddRow(current))

	got, err := s.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.Len(t, got.Extractions, 1)
	assert.Equal(t, "d2", got.Extractions[0].DocumentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadEmpty(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM documents`).WithArgs("none").
		WillReturnRows(pgxmock.NewRows([]string{"document_id", "status", "error", "updated_at"}))
	mock.ExpectQuery(`FROM extractions`).WithArgs("none").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	got, err := s.Load(context.Background(), "none")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNone, got.Status)
	assert.NotNil(t, got.Documents)
	assert.Nil(t, got.Extractions)
}

func TestPostgresStore_Checkpoints(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO "checkpoints"`).
		WithArgs("r1", "d1", "stage2", []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveCheckpoint(ctx, model.Checkpoint{ReportID: "r1", DocumentID: "d1", Stage: "stage2", Data: []byte(`{}`)}))

	mock.ExpectQuery(`SELECT data, created_at FROM checkpoints`).
		WithArgs("r1", "d1", "stage2").
		WillReturnRows(pgxmock.NewRows([]string{"data", "created_at"}).AddRow([]byte(`{}`), now))
	cp, err := s.LoadCheckpoint(ctx, "r1", "d1", "stage2")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "stage2", cp.Stage)

	mock.ExpectQuery(`SELECT data, created_at FROM checkpoints`).
		WithArgs("r1", "d1", "stage1").
		WillReturnError(pgx.ErrNoRows)
	cp, err = s.LoadCheckpoint(ctx, "r1", "d1", "stage1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	mock.ExpectExec(`DELETE FROM checkpoints`).WithArgs("r1", "d1").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	require.NoError(t, s.DeleteCheckpoints(ctx, "r1", "d1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
