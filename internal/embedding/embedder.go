package embedding

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"docqa/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// Cached memoizes embeddings per text in an LRU. It is meant for query
// embeddings, where the same question is often asked repeatedly.
type Cached struct {
	inner Embedder
	mu    sync.Mutex
	cache *lru.Cache[string, []float64]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Embedder, size int) (*Cached, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: embedding cache size must be greater than zero", domain.ErrConfiguration)
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Embed serves cached texts from memory and embeds the rest in one call.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	missing := make(map[string][]int)
	var order []string

	c.mu.Lock()
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = clone(v)
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	c.mu.Unlock()

	if len(order) == 0 {
		return out, nil
	}
	vectors, err := c.inner.Embed(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(order) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", c.inner.Name(), len(vectors), len(order))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, text := range order {
		c.cache.Add(text, clone(vectors[j]))
		for _, i := range missing[text] {
			out[i] = clone(vectors[j])
		}
	}
	return out, nil
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
