package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/pipeline"
	"github.com/sells-group/finextract/internal/store"
)

func stage1(id string, year int, revenue string) *model.Stage1Output {
	return &model.Stage1Output{
		DocumentID:          id,
		Filename:            id + ".pdf",
		ExtractionTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RawText: fmt.Sprintf(`Form 1120-S U.S. Income Tax Return for an S Corporation
For calendar year %d or tax year beginning
Name: Acme Widgets LLC
Employer identification number: 12-3456789
Springfield, IL 62701
Shareholders' pro rata share items
1a Gross receipts or sales %s
2 Cost of goods sold 400,000
7 Compensation of officers 150,000
14 Depreciation 25,000
Total deductions 600,000
Ordinary business income (loss) 250,000
`, year, revenue),
		Metadata: model.ExtractionMetadata{PageCount: 5, ExtractionMethod: model.MethodPDFPlumber},
	}
}

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	cfg := pipeline.DefaultConfig()
	cfg.AIValidation = false
	return newRouter(pipeline.New(cfg, pipeline.WithStore(st)), st, []string{"*"})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	rr := do(t, newTestAPI(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_ProcessDocument(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t)
	rr := do(t, h, http.MethodPost, "/reports/rpt-1/documents", stage1("ret-2022", 2022, "1,250,000"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StateComplete, res.State)
	assert.True(t, res.Success)
	require.NotNil(t, res.Output)
	assert.Equal(t, model.DocForm1120S, res.Output.DocumentType)
	assert.Contains(t, res.Output.FinancialData, 2022)

	rr = do(t, h, http.MethodGet, "/reports/rpt-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var state model.ReportState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, model.StatusCompleted, state.Status)
	require.Len(t, state.Extractions, 1)
	assert.Equal(t, "ret-2022", state.Extractions[0].DocumentID)
}

func TestRouter_ProcessDocument_QueryID(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t)
	rr := do(t, h, http.MethodPost, "/reports/rpt-q/documents?document_id=renamed", stage1("orig", 2022, "1,250,000"))
	require.Equal(t, http.StatusOK, rr.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "renamed", res.DocumentID)
}

func TestRouter_ProcessDocument_BadBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/reports/rpt-1/documents", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	newTestAPI(t).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid extraction body")
}

func TestRouter_ProcessDocument_VisionFallback(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t)
	scanned := &model.Stage1Output{DocumentID: "scan", RawText: "x", Metadata: model.ExtractionMetadata{IsScanned: true}}
	rr := do(t, h, http.MethodPost, "/reports/rpt-v/documents", scanned)
	require.Equal(t, http.StatusOK, rr.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StateVisionFallback, res.State)
	assert.NotEmpty(t, res.VisionFallbackReason)
	assert.Nil(t, res.Output)
}

func TestRouter_UnknownReport(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/reports/nope"},
		{http.MethodPost, "/reports/nope/crossdoc"},
		{http.MethodGet, "/reports/nope/workbook"},
	} {
		rr := do(t, h, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, tc.path)
		assert.Contains(t, rr.Body.String(), "report not found")
	}
}

func TestRouter_CrossDocumentAndWorkbook(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t)
	for _, s1 := range []*model.Stage1Output{
		stage1("ret-2021", 2021, "500,000"),
		stage1("ret-2022", 2022, "1,250,000"),
	} {
		rr := do(t, h, http.MethodPost, "/reports/rpt-x/documents", s1)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/reports/rpt-x/crossdoc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		ReportID  string                           `json:"report_id"`
		Documents int                              `json:"documents"`
		Results   []model.CrossDocValidationResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "rpt-x", body.ReportID)
	assert.Equal(t, 2, body.Documents)
	require.NotEmpty(t, body.Results)
	assert.Equal(t, model.CompareYearOverYear, body.Results[0].ComparisonType)

	rr = do(t, h, http.MethodGet, "/reports/rpt-x/workbook", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "rpt-x.xlsx")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"sde": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"encode response failed"}`, rr.Body.String())
}

func TestRouter_Rules(t *testing.T) {
	t.Parallel()

	rr := do(t, newTestAPI(t), http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var rules []ruleInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rules))
	assert.NotEmpty(t, rules)
}

func TestRouter_CORS(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	newTestAPI(t).ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
