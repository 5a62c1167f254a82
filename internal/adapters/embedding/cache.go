package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// CachedEmbedder memoizes single-text embeddings (repeated questions).
// Batch calls pass straight through.
type CachedEmbedder struct {
	next  ports.EmbeddingService
	cache *lru.Cache
}

func NewCachedEmbedder(next ports.EmbeddingService, size int) (*CachedEmbedder, error) {
	if size < 1 {
		size = 256
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, clone(vec))
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedBatch(ctx, texts)
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
