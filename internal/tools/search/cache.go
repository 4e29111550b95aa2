package search

import (
	"context"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// CachedSearcher memoizes page text per normalized query.
type CachedSearcher struct {
	inner Searcher
	cache *cache.Cache
}

func NewCachedSearcher(inner Searcher, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSearcher{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedSearcher) Search(ctx context.Context, query string) (string, error) {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if cached, found := c.cache.Get(key); found {
		return cached.(string), nil
	}
	text, err := c.inner.Search(ctx, query)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, text, cache.DefaultExpiration)
	return text, nil
}
