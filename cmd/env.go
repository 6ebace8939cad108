package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/ai"
	"github.com/sells-group/finextract/internal/config"
	"github.com/sells-group/finextract/internal/cost"
	"github.com/sells-group/finextract/internal/db"
	"github.com/sells-group/finextract/internal/pipeline"
	"github.com/sells-group/finextract/internal/resilience"
	"github.com/sells-group/finextract/internal/store"
	anthropicpkg "github.com/sells-group/finextract/pkg/anthropic"
	"github.com/sells-group/finextract/pkg/extractor"
	"github.com/sells-group/finextract/pkg/ppp"
)

// engineEnv holds the initialized clients and the orchestrator needed by the
// process, report and serve commands.
type engineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	AI           *ai.AnthropicCapability // may be nil
	PPP          *ppp.Client             // may be nil
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.PPP != nil {
		e.PPP.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// logUsage reports the AI calls and cost of the whole command.
func (e *engineEnv) logUsage() {
	if e.AI == nil {
		return
	}
	calls, usage := e.AI.Usage()
	zap.L().Info("ai usage",
		zap.Int("calls", calls),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost_usd", usage.Cost),
	)
}

// initEngine validates the config for mode, opens and migrates the store and
// builds the orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string, opts ...pipeline.Option) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &engineEnv{Store: st}
	base := []pipeline.Option{
		pipeline.WithStore(st),
		pipeline.WithExtractor(extractor.NewClient(cfg.Extractor.BaseURL,
			extractor.WithTimeout(time.Duration(cfg.Extractor.TimeoutSecs)*time.Second),
			extractor.WithRateLimit(cfg.Extractor.RatePerSec),
		)),
	}

	if cfg.Anthropic.Key != "" {
		env.AI = newAnthropic(cfg)
		base = append(base, pipeline.WithAI(ai.NewCachedCapability(env.AI,
			time.Duration(cfg.Anthropic.CacheTTLMins)*time.Minute)))
	} else {
		zap.L().Info("anthropic key not set, running rule-based only")
	}

	env.PPP = initPPP(ctx, st)
	if env.PPP != nil {
		base = append(base, pipeline.WithLoanFinder(env.PPP))
	}

	env.Orchestrator = pipeline.New(pipeline.ConfigFrom(cfg.Pipeline), append(base, opts...)...)
	return env, nil
}

// initStore opens the configured store without migrating it.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, storeConfig(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

func storeConfig(c *config.Config) store.Config {
	return store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		Pool: db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		},
	}
}

func newAnthropic(c *config.Config) *ai.AnthropicCapability {
	var opts []anthropicpkg.Option
	if c.Anthropic.BaseURL != "" {
		opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
	}
	client := anthropicpkg.NewClient(c.Anthropic.Key, opts...)

	return ai.NewAnthropicCapability(client, ai.AnthropicConfig{
		ClassifyModel: c.Anthropic.ClassifyModel,
		ValidateModel: c.Anthropic.ValidateModel,
		MaxTokens:     c.Anthropic.MaxTokens,
		Timeout:       time.Duration(c.Anthropic.TimeoutSecs) * time.Second,
		Retry:         resilience.FromRetryConfig(c.Pipeline.MaxAttempts, c.Pipeline.InitialBackoffMs, 0, c.Pipeline.BackoffMultiplier, 0.1),
		Breaker:       resilience.FromCircuitConfig(c.Anthropic.FailureThreshold, c.Anthropic.ResetTimeoutSecs),
	}, cost.NewCalculator(pricingRates(c.Pricing)))
}

func pricingRates(p config.PricingConfig) cost.Rates {
	if len(p.Anthropic) == 0 {
		return cost.DefaultRates()
	}
	rates := cost.Rates{Anthropic: make(map[string]cost.ModelRate, len(p.Anthropic))}
	for name, m := range p.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	return rates
}

// initPPP connects the loan lookup. A dedicated ppp.url wins; otherwise a
// postgres store shares its pool. Lookup is optional, so failures only warn.
func initPPP(ctx context.Context, st store.Store) *ppp.Client {
	pcfg := ppp.Config{
		Table:         cfg.PPP.Table,
		MinSimilarity: cfg.PPP.MinSimilarity,
		MaxCandidates: cfg.PPP.MaxCandidates,
	}
	if cfg.PPP.URL != "" {
		pcfg.URL = cfg.PPP.URL
		c, err := ppp.New(ctx, pcfg)
		if err != nil {
			zap.L().Warn("ppp client init failed, skipping loan corroboration", zap.Error(err))
			return nil
		}
		return c
	}
	if ps, ok := st.(*store.PostgresStore); ok {
		zap.L().Info("ppp client using shared database pool")
		return ppp.NewFromPool(ps.Pool(), pcfg)
	}
	return nil
}
