package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of vectors kept by CachedProvider.
// At 1024 dimensions that is about 8MB.
const DefaultCacheSize = 2048

// CachedProvider wraps a Provider with an LRU cache keyed by model and
// text. Errors are not cached.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps inner with a cache of size entries.
func NewCachedProvider(inner Provider, size int) *CachedProvider {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedProvider{inner: inner, cache: cache}
}

func (c *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed implements Provider.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		c.cache.Add(key, vec)
	}
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *CachedProvider) Len() int { return c.cache.Len() }

// ModelName implements Provider.
func (c *CachedProvider) ModelName() string { return c.inner.ModelName() }

// Close implements Provider.
func (c *CachedProvider) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
