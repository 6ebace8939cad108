package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/finextract/internal/config"
	"github.com/sells-group/finextract/internal/cost"
)

func TestPricingRates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, cost.DefaultRates(), pricingRates(config.PricingConfig{}))

	rates := pricingRates(config.PricingConfig{Anthropic: map[string]config.ModelPricing{
		"claude-haiku-4-5-20251001": {Input: 2, Output: 8, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	}})
	assert.Len(t, rates.Anthropic, 1)
	assert.Equal(t, cost.ModelRate{Input: 2, Output: 8, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		rates.Anthropic["claude-haiku-4-5-20251001"])
}

func TestStoreConfig(t *testing.T) {
	t.Parallel()

	c := &config.Config{Store: config.StoreConfig{
		Driver:      "postgres",
		DatabaseURL: "postgres://localhost/finextract",
		MaxConns:    8,
		MinConns:    2,
	}}
	sc := storeConfig(c)
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, "postgres://localhost/finextract", sc.DatabaseURL)
	assert.Equal(t, int32(8), sc.Pool.MaxConns)
	assert.Equal(t, int32(2), sc.Pool.MinConns)
}
