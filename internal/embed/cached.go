package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the default number of query embeddings to keep.
// At 1536 dimensions * 4 bytes * 512 entries that is roughly 3 MB.
const DefaultQueryCacheSize = 512

// CachedClient wraps a Client with an LRU memo over single-text requests so
// repeated queries skip the proxy round trip. Multi-text requests pass
// through untouched; the chunk path already carries its own idempotency key.
type CachedClient struct {
	inner Client
	cache *lru.Cache[string, []float32]
}

// Compile-time interface check.
var _ Client = (*CachedClient)(nil)

// NewCachedClient creates a caching wrapper around client.
func NewCachedClient(inner Client, cacheSize int) *CachedClient {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedClient{inner: inner, cache: cache}
}

// cacheKey hashes text, model, and proxy so a settings change never serves a
// stale embedding.
func (c *CachedClient) cacheKey(req Request) string {
	combined := req.Texts[0] + "\x00" + req.Model.Name() + "\x00" + req.ProxyURL
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed serves single-text requests from the memo when possible.
func (c *CachedClient) Embed(ctx context.Context, req Request) (*Response, error) {
	if len(req.Texts) != 1 {
		return c.inner.Embed(ctx, req)
	}

	key := c.cacheKey(req)
	if embedding, ok := c.cache.Get(key); ok {
		return &Response{
			Embeddings: [][]float32{embedding},
			Model:      req.Model.Name(),
		}, nil
	}

	response, err := c.inner.Embed(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 1 {
		c.cache.Add(key, response.Embeddings[0])
	}
	return response, nil
}
