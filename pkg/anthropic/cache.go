package anthropic

// BuildCachedSystemBlocks constructs a system block with an ephemeral cache
// breakpoint. Classification and validation reuse the same long system
// prompt across documents, so later calls in a report hit the warm cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
