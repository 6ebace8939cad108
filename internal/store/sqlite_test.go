package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finextract/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleOutput(reportID, documentID string) *model.FinalExtractionOutput {
	return &model.FinalExtractionOutput{
		ReportID:     reportID,
		DocumentID:   documentID,
		DocumentType: model.DocForm1120S,
		EntityType:   model.EntitySCorp,
		FinancialData: map[int]model.StructuredFinancialData{
			2022: {DocumentID: documentID, TaxYear: 2022, IncomeStatement: model.IncomeStatement{GrossReceiptsSales: 1_250_000}},
		},
		Confidence:        model.ConfidenceScore{Overall: 82, Recommendation: model.RecommendReady},
		ReadyForValuation: true,
	}
}

func TestSQLite_LoadUnknownReport(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)

	got, err := st.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", got.ReportID)
	assert.Equal(t, model.StatusNone, got.Status)
	assert.Empty(t, got.Documents)
	assert.Nil(t, got.Extractions)
}

func TestSQLite_StatusLifecycle(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpdateStatus(ctx, "r1", "d1", model.StatusPending, ""))
	require.NoError(t, st.UpdateStatus(ctx, "r1", "d2", model.StatusPending, ""))

	got, err := st.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	require.Len(t, got.Documents, 2)

	require.NoError(t, st.UpdateStatus(ctx, "r1", "d1", model.StatusProcessing, ""))
	got, err = st.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)

	require.NoError(t, st.UpdateStatus(ctx, "r1", "d2", model.StatusFailed, "encrypted pdf"))
	got, err = st.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "encrypted pdf", got.Documents[1].Error)

	// Other reports are untouched.
	other, err := st.Load(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNone, other.Status)
}

func TestSQLite_SaveMarksCompleted(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpdateStatus(ctx, "r1", "d1", model.StatusProcessing, ""))
	require.NoError(t, st.Save(ctx, "r1", "d1", sampleOutput("r1", "d1")))

	got, err := st.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.Len(t, got.Documents, 1)
	assert.Empty(t, got.Documents[0].Error)
	require.Len(t, got.Extractions, 1)
	assert.True(t, got.Extractions[0].ReadyForValuation)
	assert.InDelta(t, 1_250_000, got.Extractions[0].FinancialData[2022].IncomeStatement.GrossReceiptsSales, 0.001)

	// Saving again replaces the extraction.
	out := sampleOutput("r1", "d1")
	out.ReadyForValuation = false
	require.NoError(t, st.Save(ctx, "r1", "d1", out))
	got, err = st.Load(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got.Extractions, 1)
	assert.False(t, got.Extractions[0].ReadyForValuation)

	assert.Error(t, st.Save(ctx, "r1", "d1", nil))
}

func TestSQLite_LoadSkipsExtractionOfFailedDocument(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, "r1", "d1", sampleOutput("r1", "d1")))
	require.NoError(t, st.Save(ctx, "r1", "d2", sampleOutput("r1", "d2")))

	// A later run of d1 fails; its previous extraction stays on disk.
	require.NoError(t, st.UpdateStatus(ctx, "r1", "d1", model.StatusFailed, "extraction timed out"))

	got, err := st.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.Len(t, got.Documents, 2)
	require.Len(t, got.Extractions, 1)
	assert.Equal(t, "d2", got.Extractions[0].DocumentID)

	require.NoError(t, st.UpdateStatus(ctx, "r1", "d2", model.StatusProcessing, ""))
	got, err = st.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got.Extractions)
}

func TestSQLite_Checkpoints(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cp, err := st.LoadCheckpoint(ctx, "r1", "d1", "stage1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, st.SaveCheckpoint(ctx, model.Checkpoint{ReportID: "r1", DocumentID: "d1", Stage: "stage1", Data: []byte(`{"a":1}`)}))
	require.NoError(t, st.SaveCheckpoint(ctx, model.Checkpoint{ReportID: "r1", DocumentID: "d1", Stage: "stage1", Data: []byte(`{"a":2}`)}))
	require.NoError(t, st.SaveCheckpoint(ctx, model.Checkpoint{ReportID: "r1", DocumentID: "d1", Stage: "stage2", Data: []byte(`{}`)}))

	cp, err = st.LoadCheckpoint(ctx, "r1", "d1", "stage1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.JSONEq(t, `{"a":2}`, string(cp.Data))
	assert.False(t, cp.CreatedAt.IsZero())

	require.NoError(t, st.DeleteCheckpoints(ctx, "r1", "d1"))
	cp, err = st.LoadCheckpoint(ctx, "r1", "d1", "stage2")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	st, err := Open(context.Background(), Config{Driver: DriverSQLite, DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")

	_, err = Open(context.Background(), Config{Driver: DriverPostgres})
	assert.Error(t, err)
}
