package embeddings

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoizes query embeddings in an LRU cache. Document
// embeddings are passed through since each chunk is embedded once.
type CachedProvider struct {
	Provider
	cache   *lru.Cache[string, []float32]
	metrics *Metrics
}

// NewCachedProvider wraps p with a cache holding up to size queries.
func NewCachedProvider(p Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: cache size must be greater than zero", ErrInvalidConfig)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &CachedProvider{Provider: p, cache: cache, metrics: NewMetrics(nil)}, nil
}

// EmbedQuery returns a cached vector when present. Callers receive a copy
// so mutations never leak into the cache.
func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		c.metrics.RecordCacheHit(ctx)
		return cloneVector(vec), nil
	}
	vec, err := c.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, cloneVector(vec))
	return vec, nil
}

// Len reports the number of cached queries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

// Close purges the cache and closes the wrapped provider.
func (c *CachedProvider) Close() error {
	c.cache.Purge()
	return c.Provider.Close()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

var _ Provider = (*CachedProvider)(nil)
