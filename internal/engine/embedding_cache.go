package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/scrypster/recollect/internal/llm"
)

// CachedEmbedder memoizes query embeddings. Repeated questions ("where are my
// keys") skip the embedding call entirely. Keys ignore case and surrounding
// whitespace.
type CachedEmbedder struct {
	inner llm.EmbeddingGenerator
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with a cache holding roughly maxEntries
// embeddings. maxEntries <= 0 returns inner unchanged.
func NewCachedEmbedder(inner llm.EmbeddingGenerator, maxEntries int64) (llm.EmbeddingGenerator, error) {
	if inner == nil || maxEntries <= 0 {
		return inner, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func cacheKey(model, text string) string {
	return model + "\x00" + strings.ToLower(strings.TrimSpace(text))
}

// Embed returns a cached embedding or computes and caches a new one.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.GetModel(), text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, 1)
	return vec, nil
}

// GetModel returns the wrapped model name.
func (c *CachedEmbedder) GetModel() string {
	return c.inner.GetModel()
}

// Wait blocks until pending cache writes are visible. Used by tests.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
