package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finextract/internal/ai"
	"github.com/sells-group/finextract/internal/model"
)

type mockFallback struct {
	mock.Mock
}

func (m *mockFallback) Classify(ctx context.Context, req ai.ClassifyRequest) (model.DocumentClassification, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.DocumentClassification), args.Error(1)
}

const form1120SText = `Form 1120-S U.S. Income Tax Return for an S Corporation
For calendar year 2022 or tax year beginning
Name: Acme Widgets LLC
Shareholders' pro rata share items`

func TestScoreKeywords(t *testing.T) {
	t.Parallel()

	scores := ScoreKeywords("form 1120-s u.s. income tax return for an s corporation balance sheet ")
	require.NotEmpty(t, scores)
	assert.Equal(t, model.DocForm1120S, scores[0].Type)
	assert.GreaterOrEqual(t, scores[0].Count, 2)

	assert.Empty(t, ScoreKeywords("grocery list eggs milk "))
}

func TestScoreKeywords_Form1120DoesNotMatch1120S(t *testing.T) {
	t.Parallel()

	for _, s := range ScoreKeywords("form 1120-s ") {
		assert.NotEqual(t, model.DocForm1120, s.Type)
	}
	scores := ScoreKeywords("form 1120 u.s. corporation income tax return ")
	require.NotEmpty(t, scores)
	assert.Equal(t, model.DocForm1120, scores[0].Type)
}

func TestKeywordDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scores []TypeScore
		want   model.ConfidenceLevel
	}{
		{"clear winner", []TypeScore{{Type: model.DocForm1065, Count: 3}, {Type: model.DocBalanceSheet, Count: 1}}, model.ConfidenceHigh},
		{"winner without lead", []TypeScore{{Type: model.DocForm1065, Count: 3}, {Type: model.DocBalanceSheet, Count: 2}}, ""},
		{"lone match", []TypeScore{{Type: model.DocScheduleC, Count: 1}}, model.ConfidenceMedium},
		{"lone match two types", []TypeScore{{Type: model.DocScheduleC, Count: 1}, {Type: model.DocIncomeStatement, Count: 1}}, model.ConfidenceMedium},
		{"lone match three types", []TypeScore{{Type: model.DocScheduleC, Count: 1}, {Type: model.DocIncomeStatement, Count: 1}, {Type: model.DocBalanceSheet, Count: 1}}, ""},
		{"nothing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := keywordDecision(tt.scores)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Confidence)
			assert.Equal(t, model.SourceKeyword, got.Source)
		})
	}
}

func TestExtractTaxYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"tax year phrase", "For tax year beginning Jan 1, 2021 and ending Dec 31, 2021", 2021},
		{"calendar year", "For calendar year 2022 or tax year beginning", 2022},
		{"december 31", "Balance sheet as of December 31, 2020", 2020},
		{"explicit before bare", "Printed 2024. Tax year 2019 return", 2019},
		{"bare year", "Statement prepared 2023", 2023},
		{"out of range", "Founded 1998", 0},
		{"none", "no year here", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractTaxYear(tt.text))
		})
	}
}

func TestExtractEntityName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"name of corporation", "Name of corporation: Blue Ridge Dental PC\nEIN 12-3456789", "Blue Ridge Dental PC"},
		{"business name", "Business name - Main Street Bakery\n", "Main Street Bakery"},
		{"suffix", "Prepared for Harbor Logistics LLC by the accountant", "Harbor Logistics LLC"},
		{"skips form title", "U.S. Income Tax Return for an S Corporation\nprepared for Lake Farms Inc", "Lake Farms Inc"},
		{"none", "lowercase only text", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractEntityName(tt.text))
		})
	}
}

func TestClassifier_HighConfidenceSkipsAI(t *testing.T) {
	t.Parallel()

	fb := &mockFallback{}
	c := New(fb)
	got, err := c.Classify(context.Background(), &model.Stage1Output{DocumentID: "doc-1", RawText: form1120SText})
	require.NoError(t, err)

	assert.Equal(t, model.DocForm1120S, got.DocumentType)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 2022, got.TaxYear)
	assert.Equal(t, "Acme Widgets LLC", got.EntityName)
	assert.Contains(t, got.Indicators, "form 1120-s")
	fb.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestClassifier_AIAgreementBoostsConfidence(t *testing.T) {
	t.Parallel()

	fb := &mockFallback{}
	fb.On("Classify", mock.Anything, mock.MatchedBy(func(req ai.ClassifyRequest) bool { return req.DocumentID == "doc-2" })).
		Return(model.DocumentClassification{
			DocumentType: model.DocScheduleC,
			Confidence:   model.ConfidenceMedium,
			Indicators:   []string{"line 31 net profit"},
			TaxYear:      2021,
		}, nil).Once()

	c := New(fb)
	got, err := c.Classify(context.Background(), &model.Stage1Output{DocumentID: "doc-2", RawText: "Profit or Loss From Business"})
	require.NoError(t, err)

	assert.Equal(t, model.DocScheduleC, got.DocumentType)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)
	assert.Equal(t, model.SourceKeywordAI, got.Source)
	assert.ElementsMatch(t, []string{"profit or loss from business", "line 31 net profit"}, got.Indicators)
	assert.Equal(t, 2021, got.TaxYear)
	fb.AssertExpectations(t)
}

func TestClassifier_AmbiguousUsesAI(t *testing.T) {
	t.Parallel()

	fb := &mockFallback{}
	fb.On("Classify", mock.Anything, mock.Anything).
		Return(model.DocumentClassification{DocumentType: model.DocFinancialStatement, Confidence: model.ConfidenceMedium}, nil).Once()

	c := New(fb)
	got, err := c.Classify(context.Background(), &model.Stage1Output{DocumentID: "doc-3", RawText: "quarterly summary of operations"})
	require.NoError(t, err)
	assert.Equal(t, model.DocFinancialStatement, got.DocumentType)
	assert.Equal(t, model.ConfidenceMedium, got.Confidence)
	assert.Equal(t, model.SourceAI, got.Source)
	assert.NotNil(t, got.Indicators)
}

func TestClassifier_AIDisagreementCapped(t *testing.T) {
	t.Parallel()

	fb := &mockFallback{}
	fb.On("Classify", mock.Anything, mock.Anything).
		Return(model.DocumentClassification{DocumentType: model.DocForm1065, Confidence: model.ConfidenceHigh}, nil).Once()

	c := New(fb)
	got, err := c.Classify(context.Background(), &model.Stage1Output{DocumentID: "doc-4", RawText: "Profit or Loss From Business"})
	require.NoError(t, err)
	assert.Equal(t, model.DocForm1065, got.DocumentType)
	assert.Equal(t, model.ConfidenceMedium, got.Confidence)
}

func TestClassifier_AIFailureFallsBack(t *testing.T) {
	t.Parallel()

	fb := &mockFallback{}
	fb.On("Classify", mock.Anything, mock.Anything).Return(model.UnknownClassification(), errors.New("overloaded")).Once()

	c := New(fb)
	got, err := c.Classify(context.Background(), &model.Stage1Output{DocumentID: "doc-5", RawText: "Profit or Loss From Business"})
	require.NoError(t, err)
	assert.Equal(t, model.DocScheduleC, got.DocumentType)
	assert.Equal(t, model.ConfidenceMedium, got.Confidence)
}

func TestClassifier_AIUnknownKeepsKeywordGuess(t *testing.T) {
	t.Parallel()

	fb := &mockFallback{}
	fb.On("Classify", mock.Anything, mock.Anything).Return(model.UnknownClassification(), nil).Once()

	c := New(fb)
	got, err := c.Classify(context.Background(), &model.Stage1Output{DocumentID: "doc-6", RawText: "nothing useful here"})
	require.NoError(t, err)
	assert.Equal(t, model.DocUnknown, got.DocumentType)
	assert.Equal(t, model.ConfidenceLow, got.Confidence)
}

func TestClassifier_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fb := &mockFallback{}
	fb.On("Classify", mock.Anything, mock.Anything).Return(model.UnknownClassification(), context.Canceled).Once()

	c := New(fb)
	_, err := c.Classify(ctx, &model.Stage1Output{DocumentID: "doc-7", RawText: "ambiguous"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifier_NoFallback(t *testing.T) {
	t.Parallel()

	c := New(nil)
	got, err := c.Classify(context.Background(), &model.Stage1Output{RawText: "balance sheet total current assets income statement statement of operations"})
	require.NoError(t, err)
	// Two types with multiple hits and no clear lead: best guess at low confidence.
	assert.Equal(t, model.DocIncomeStatement, got.DocumentType)
	assert.Equal(t, model.ConfidenceLow, got.Confidence)

	unknown, err := c.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.DocUnknown, unknown.DocumentType)
}

func TestClassifyText(t *testing.T) {
	t.Parallel()

	got := ClassifyText("Schedule K-1 Partner's Share of Income, Deductions, Credits")
	assert.Equal(t, model.DocScheduleK1, got.DocumentType)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)
}
