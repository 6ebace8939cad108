package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finextract/internal/cost"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/resilience"
	"github.com/sells-group/finextract/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) Classify(ctx context.Context, req ClassifyRequest) (model.DocumentClassification, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.DocumentClassification), args.Error(1)
}

func (m *mockCapability) Validate(ctx context.Context, req ValidateRequest) (*model.AIEnrichment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AIEnrichment), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 100},
	}
}

func noSleep() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: 4,
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestParseClassification(t *testing.T) {
	t.Parallel()

	got := parseClassification("```json\n{\"document_type\":\"form 1120-S\",\"confidence\":\"High\",\"indicators\":[\"form 1120-s\"],\"tax_year\":2022,\"entity_name\":\" Acme Inc \"}\n```")
	assert.Equal(t, model.DocForm1120S, got.DocumentType)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 2022, got.TaxYear)
	assert.Equal(t, "Acme Inc", got.EntityName)
	assert.Equal(t, model.SourceAI, got.Source)
}

func TestParseClassification_Repaired(t *testing.T) {
	t.Parallel()

	// Trailing comma is repaired.
	got := parseClassification(`{"document_type": "FORM_1065", "confidence": "medium", "indicators": ["form 1065"],}`)
	assert.Equal(t, model.DocForm1065, got.DocumentType)
	assert.Equal(t, model.ConfidenceMedium, got.Confidence)
}

func TestParseClassification_Degrades(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "I cannot classify this document.", `{"document_type":"W-2","confidence":"high"}`} {
		got := parseClassification(in)
		assert.Equal(t, model.DocUnknown, got.DocumentType, in)
		assert.Equal(t, model.ConfidenceLow, got.Confidence, in)
		assert.NotNil(t, got.Indicators, in)
	}
}

func TestParseClassification_RejectsOutOfRangeYear(t *testing.T) {
	t.Parallel()
	got := parseClassification(`{"document_type":"SCHEDULE_C","confidence":"low","tax_year":1999}`)
	assert.Equal(t, model.DocScheduleC, got.DocumentType)
	assert.Zero(t, got.TaxYear)
}

func TestParseEnrichment(t *testing.T) {
	t.Parallel()

	enr, err := parseEnrichment(`{"additional_flags":[
		{"id":"","name":"Rent to owner","severity":"WARNING","field":"expenses.rents","message":"Rent may be paid to a related party"},
		{"id":"X","name":"empty","severity":"error","message":" "},
		{"id":"AI9","name":"Add back","severity":"info","message":"Owner auto expense"}
	],"normalization_notes":["add back owner auto", ""],"confidence_adjustment":-45}`)
	require.NoError(t, err)

	require.Len(t, enr.AdditionalFlags, 2)
	assert.Equal(t, "AI001", enr.AdditionalFlags[0].ID)
	assert.Equal(t, model.SeverityWarning, enr.AdditionalFlags[0].Severity)
	assert.False(t, enr.AdditionalFlags[0].Passed)
	assert.Equal(t, model.SeverityInfo, enr.AdditionalFlags[1].Severity)
	assert.True(t, enr.AdditionalFlags[1].Passed)
	assert.Equal(t, []string{"add back owner auto"}, enr.NormalizationNotes)
	assert.Equal(t, -20, enr.ConfidenceAdjustment)
}

func TestParseEnrichment_Invalid(t *testing.T) {
	t.Parallel()
	_, err := parseEnrichment("no json here")
	assert.Error(t, err)
}

func TestBuildClassifyPrompt(t *testing.T) {
	t.Parallel()

	tables := make([]model.Table, 7)
	for i := range tables {
		tables[i] = model.Table{
			PageNumber: i + 1,
			Headers:    []string{"Line", "Amount"},
			Rows:       [][]string{{"1a", "100"}, {"2", "200"}, {"3", "300"}, {"4", "SHOULD-NOT-APPEAR"}},
		}
	}
	prompt := BuildClassifyPrompt(ClassifyRequest{
		RawText: strings.Repeat("a", 5000) + "TAIL",
		Tables:  tables,
	})

	assert.NotContains(t, prompt, "TAIL")
	assert.Contains(t, prompt, strings.Repeat("a", 4000))
	assert.Contains(t, prompt, "Table 5 (page 5)")
	assert.NotContains(t, prompt, "Table 6")
	assert.NotContains(t, prompt, "SHOULD-NOT-APPEAR")
	assert.Contains(t, prompt, "Line | Amount")
}

func TestBuildValidatePrompt(t *testing.T) {
	t.Parallel()

	prompt := BuildValidatePrompt(ValidateRequest{
		Classification: model.DocumentClassification{DocumentType: model.DocForm1120S, Confidence: model.ConfidenceHigh, TaxYear: 2022},
		Data:           &model.StructuredFinancialData{DocumentID: "doc-1"},
		Results: []model.ValidationResult{
			{ID: "BS001", Name: "Balance sheet balances", Severity: model.SeverityError, Message: "off by $500"},
		},
	})
	assert.Contains(t, prompt, "FORM_1120S")
	assert.Contains(t, prompt, "Tax year: 2022")
	assert.Contains(t, prompt, "doc-1")
	assert.Contains(t, prompt, "[error] BS001")
}

func TestAnthropicCapability_Classify(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "classify-model" && len(req.System) == 1 && req.System[0].CacheControl != nil
	})).Return(textResponse(`{"document_type":"FORM_1120","confidence":"high","indicators":["form 1120"]}`), nil).Once()

	rates := cost.Rates{Anthropic: map[string]cost.ModelRate{"classify-model": {Input: 1, Output: 10}}}
	capability := NewAnthropicCapability(client, AnthropicConfig{ClassifyModel: "classify-model"}, cost.NewCalculator(rates))

	meter := &Meter{}
	got, err := capability.Classify(WithMeter(context.Background(), meter), ClassifyRequest{DocumentID: "doc-1", RawText: "U.S. Corporation Income Tax Return"})
	require.NoError(t, err)
	assert.Equal(t, model.DocForm1120, got.DocumentType)

	calls, usage := meter.Snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1000, usage.InputTokens)
	assert.InDelta(t, 0.002, usage.Cost, 1e-9)

	total, _ := capability.Usage()
	assert.Equal(t, 1, total)
	client.AssertExpectations(t)
}

func TestAnthropicCapability_RetriesTransient(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Twice()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"additional_flags":[],"normalization_notes":[],"confidence_adjustment":3}`), nil).Once()

	capability := NewAnthropicCapability(client, AnthropicConfig{ValidateModel: "validate-model", Retry: noSleep()}, nil)
	enr, err := capability.Validate(context.Background(), ValidateRequest{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, enr.ConfidenceAdjustment)
	assert.Equal(t, "validate-model", enr.Model)
	client.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestAnthropicCapability_ValidateUnparseable(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("sorry"), nil)

	capability := NewAnthropicCapability(client, AnthropicConfig{}, nil)
	_, err := capability.Validate(context.Background(), ValidateRequest{DocumentID: "doc-1"})
	assert.Error(t, err)
}

func TestAnthropicCapability_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer ts.Close()

	capability := NewAnthropicCapability(anthropic.NewClient("bad-key", anthropic.WithBaseURL(ts.URL)), AnthropicConfig{Retry: noSleep()}, nil)
	got, err := capability.Classify(context.Background(), ClassifyRequest{DocumentID: "doc-1", RawText: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, model.DocUnknown, got.DocumentType)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAnthropicCapability_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	capability := NewAnthropicCapability(client, AnthropicConfig{Retry: noSleep()}, nil)
	_, err := capability.Classify(ctx, ClassifyRequest{DocumentID: "doc-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestCachedCapability(t *testing.T) {
	t.Parallel()

	next := &mockCapability{}
	req := ClassifyRequest{DocumentID: "doc-1", RawText: "Form 1065 U.S. Return of Partnership Income"}
	next.On("Classify", mock.Anything, req).
		Return(model.DocumentClassification{DocumentType: model.DocForm1065, Confidence: model.ConfidenceHigh}, nil).Once()

	c := NewCachedCapability(next, time.Minute)
	for i := 0; i < 3; i++ {
		got, err := c.Classify(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, model.DocForm1065, got.DocumentType)
	}
	next.AssertNumberOfCalls(t, "Classify", 1)
}

func TestCachedCapability_DoesNotCacheUnknownOrErrors(t *testing.T) {
	t.Parallel()

	next := &mockCapability{}
	req := ClassifyRequest{DocumentID: "doc-2", RawText: "grocery list"}
	next.On("Classify", mock.Anything, req).Return(model.UnknownClassification(), nil).Twice()
	errReq := ClassifyRequest{DocumentID: "doc-3", RawText: "timeout"}
	next.On("Classify", mock.Anything, errReq).Return(model.UnknownClassification(), errors.New("timeout")).Twice()
	next.On("Validate", mock.Anything, mock.Anything).Return(&model.AIEnrichment{}, nil).Once()

	c := NewCachedCapability(next, 0)
	for i := 0; i < 2; i++ {
		_, err := c.Classify(context.Background(), req)
		require.NoError(t, err)
		_, err = c.Classify(context.Background(), errReq)
		require.Error(t, err)
	}
	_, err := c.Validate(context.Background(), ValidateRequest{})
	require.NoError(t, err)
	next.AssertExpectations(t)
}

func TestMeter_NilSafe(t *testing.T) {
	t.Parallel()
	var m *Meter
	m.Record(model.TokenUsage{InputTokens: 1})
	calls, usage := m.Snapshot()
	assert.Zero(t, calls)
	assert.Zero(t, usage.InputTokens)
	assert.Nil(t, MeterFrom(context.Background()))
}
