package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/model"
)

// CachedCapability memoizes classifications by prompt so re-running a report
// does not pay for the same document twice. Validation is never cached
// because its input includes rule results that change between runs.
type CachedCapability struct {
	next  Capability
	cache *cache.Cache
}

// NewCachedCapability wraps next with an in-memory classification cache.
func NewCachedCapability(next Capability, ttl time.Duration) *CachedCapability {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedCapability{
		next:  next,
		cache: cache.New(ttl, ttl*2),
	}
}

// Classify returns a cached classification or delegates to the wrapped
// capability. Only successful, non-UNKNOWN results are cached.
func (c *CachedCapability) Classify(ctx context.Context, req ClassifyRequest) (model.DocumentClassification, error) {
	key := promptKey(BuildClassifyPrompt(req))
	if v, ok := c.cache.Get(key); ok {
		zap.L().Debug("ai: classification cache hit", zap.String("document_id", req.DocumentID))
		return v.(model.DocumentClassification), nil
	}

	out, err := c.next.Classify(ctx, req)
	if err != nil {
		return out, err
	}
	if out.DocumentType != model.DocUnknown {
		c.cache.Set(key, out, cache.DefaultExpiration)
	}
	return out, nil
}

// Validate delegates to the wrapped capability.
func (c *CachedCapability) Validate(ctx context.Context, req ValidateRequest) (*model.AIEnrichment, error) {
	return c.next.Validate(ctx, req)
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
