package ai

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/cost"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/resilience"
	"github.com/sells-group/finextract/pkg/anthropic"
)

const (
	defaultClassifyModel = "claude-haiku-4-5-20251001"
	defaultValidateModel = "claude-sonnet-4-5-20250929"
	defaultMaxTokens     = 1024
	defaultCallTimeout   = 60 * time.Second
	systemCacheTTL       = "5m"
)

// AnthropicConfig configures the Anthropic-backed capability.
type AnthropicConfig struct {
	ClassifyModel string
	ValidateModel string
	MaxTokens     int64
	Timeout       time.Duration
	Retry         resilience.RetryConfig
	Breaker       resilience.CircuitBreakerConfig
}

// AnthropicCapability implements Capability with Claude models.
type AnthropicCapability struct {
	client  anthropic.Client
	cfg     AnthropicConfig
	breaker *resilience.CircuitBreaker
	calc    *cost.Calculator
	meter   Meter
}

// NewAnthropicCapability wraps client with retry, circuit breaking and cost
// accounting. A nil calculator records zero cost.
func NewAnthropicCapability(client anthropic.Client, cfg AnthropicConfig, calc *cost.Calculator) *AnthropicCapability {
	if cfg.ClassifyModel == "" {
		cfg.ClassifyModel = defaultClassifyModel
	}
	if cfg.ValidateModel == "" {
		cfg.ValidateModel = defaultValidateModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	return &AnthropicCapability{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("anthropic", cfg.Breaker),
		calc:    calc,
	}
}

// Classify asks the classification model for a document type.
func (a *AnthropicCapability) Classify(ctx context.Context, req ClassifyRequest) (model.DocumentClassification, error) {
	text, err := a.complete(ctx, "classify", a.cfg.ClassifyModel, classifySystemPrompt, BuildClassifyPrompt(req))
	if err != nil {
		return model.UnknownClassification(), eris.Wrapf(err, "ai: classify %s", req.DocumentID)
	}
	return parseClassification(text), nil
}

// Validate asks the validation model to review mapped data and rule results.
func (a *AnthropicCapability) Validate(ctx context.Context, req ValidateRequest) (*model.AIEnrichment, error) {
	text, err := a.complete(ctx, "validate", a.cfg.ValidateModel, validateSystemPrompt, BuildValidatePrompt(req))
	if err != nil {
		return nil, eris.Wrapf(err, "ai: validate %s", req.DocumentID)
	}
	enr, err := parseEnrichment(text)
	if err != nil {
		return nil, eris.Wrapf(err, "ai: validate %s", req.DocumentID)
	}
	enr.Model = a.cfg.ValidateModel
	return enr, nil
}

// Usage returns the calls and token usage across the capability's lifetime.
func (a *AnthropicCapability) Usage() (int, model.TokenUsage) {
	return a.meter.Snapshot()
}

func (a *AnthropicCapability) complete(ctx context.Context, operation, modelName, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       modelName,
		MaxTokens:   a.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system, systemCacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, a.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			resp, err := a.client.CreateMessage(ctx, req)
			if err != nil {
				return nil, classifyAPIError(err)
			}
			return resp, nil
		})
	})
	if err != nil {
		return "", err
	}

	u := resp.Usage
	usd := a.calc.Claude(modelName, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)
	u.LogUsage(modelName, operation, usd)

	usage := model.TokenUsage{
		InputTokens:  int(u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens),
		OutputTokens: int(u.OutputTokens),
		Cost:         usd,
	}
	a.meter.Record(usage)
	MeterFrom(ctx).Record(usage)

	zap.L().Debug("ai: response received",
		zap.String("operation", operation),
		zap.String("stop_reason", resp.StopReason),
	)
	return resp.Text(), nil
}

// classifyAPIError tags API errors by HTTP status so retry and circuit
// breaking treat them correctly.
func classifyAPIError(err error) error {
	code := anthropic.StatusCode(err)
	switch {
	case resilience.IsPermanentHTTPStatus(code):
		return resilience.NewPermanentError(err, strconv.Itoa(code))
	case resilience.IsTransientHTTPStatus(code):
		return resilience.NewTransientError(err, code)
	}
	return err
}
