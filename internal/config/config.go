package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extractor ExtractorConfig `yaml:"extractor" mapstructure:"extractor"`
	PPP       PPPConfig       `yaml:"ppp" mapstructure:"ppp"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	ClassifyModel    string `yaml:"classify_model" mapstructure:"classify_model"`
	ValidateModel    string `yaml:"validate_model" mapstructure:"validate_model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMins     int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ExtractorConfig configures the Stage 1 extraction service client.
type ExtractorConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PPPConfig configures the optional PPP loan corroboration lookup.
type PPPConfig struct {
	URL           string  `yaml:"url" mapstructure:"url"`
	Table         string  `yaml:"table" mapstructure:"table"`
	MinSimilarity float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
	MaxCandidates int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing.
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PipelineConfig configures document processing.
type PipelineConfig struct {
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	BackoffMultiplier       float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	StageTimeoutSecs        int     `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	MinScannedOCRConfidence float64 `yaml:"min_scanned_ocr_confidence" mapstructure:"min_scanned_ocr_confidence"`
	MinTextChars            int     `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	MaxConcurrency          int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	AIValidation            bool    `yaml:"ai_validation" mapstructure:"ai_validation"`
	Checkpoints             bool    `yaml:"checkpoints" mapstructure:"checkpoints"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional .env file, an optional
// config.yaml and FINEXTRACT_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FINEXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "finextract.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.validate_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.cache_ttl_mins", 60)
	v.SetDefault("anthropic.failure_threshold", 5)
	v.SetDefault("anthropic.reset_timeout_secs", 60)
	v.SetDefault("extractor.base_url", "http://localhost:8000")
	v.SetDefault("extractor.timeout_secs", 300)
	v.SetDefault("extractor.rate_per_sec", 2.0)
	v.SetDefault("ppp.url", "")
	v.SetDefault("ppp.table", "ppp_loans")
	v.SetDefault("ppp.min_similarity", 0.4)
	v.SetDefault("ppp.max_candidates", 10)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0, "cache_write_mul": 1.25, "cache_read_mul": 0.1},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0, "cache_write_mul": 1.25, "cache_read_mul": 0.1},
	})
	v.SetDefault("pipeline.max_attempts", 4)
	v.SetDefault("pipeline.initial_backoff_ms", 1000)
	v.SetDefault("pipeline.backoff_multiplier", 3.0)
	v.SetDefault("pipeline.stage_timeout_secs", 300)
	v.SetDefault("pipeline.min_scanned_ocr_confidence", 0.3)
	v.SetDefault("pipeline.min_text_chars", 100)
	v.SetDefault("pipeline.max_concurrency", 1)
	v.SetDefault("pipeline.ai_validation", true)
	v.SetDefault("pipeline.checkpoints", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. Modes: process, serve, migrate.
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, key string) {
		if !ok {
			problems = append(problems, key+" is required")
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	require(c.Store.DatabaseURL != "", "store.database_url")

	switch mode {
	case "migrate":
	case "process", "serve":
		if c.Pipeline.MaxAttempts < 1 {
			problems = append(problems, "pipeline.max_attempts must be at least 1")
		}
		if c.Pipeline.AIValidation {
			require(c.Anthropic.Key != "", "anthropic.key")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			problems = append(problems, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
