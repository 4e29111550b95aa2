package memory

import (
	"context"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/felixgeelhaar/recall/internal/provider"
)

// Sanitize drops every non-ASCII rune; embedding endpoints get plain ASCII.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, text)
}

// CachedEmbedder sanitizes text and memoizes vectors for ttl.
type CachedEmbedder struct {
	inner provider.Embedder
	cache *cache.Cache
}

func NewCachedEmbedder(inner provider.Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedEmbedder{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := Sanitize(text)
	if v, ok := e.cache.Get(clean); ok {
		return append([]float32(nil), v.([]float32)...), nil
	}
	vec, err := e.inner.Embed(ctx, clean)
	if err != nil {
		return nil, err
	}
	e.cache.Set(clean, append([]float32(nil), vec...), cache.DefaultExpiration)
	return vec, nil
}
