package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockwatch/internal/store"
	"stockwatch/models"
)

type cacheEntry struct {
	expiresAt time.Time
	value     any
}

// CachedReader answers repeated reads from memory for TTL. Failed reads
// are not cached.
type CachedReader struct {
	R   store.Reader
	TTL time.Duration

	now   func() time.Time
	mu    sync.RWMutex
	items map[string]cacheEntry
}

var _ store.Reader = &CachedReader{}

func NewCachedReader(r store.Reader, ttl time.Duration) *CachedReader {
	return &CachedReader{R: r, TTL: ttl, now: time.Now, items: make(map[string]cacheEntry)}
}

func cached[T any](c *CachedReader, key string, load func() (T, error)) (T, error) {
	if c.TTL <= 0 {
		return load()
	}

	now := c.now()
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.value.(T), nil
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	c.items[key] = cacheEntry{expiresAt: now.Add(c.TTL), value: v}
	// drop whatever else has expired
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
	return v, nil
}

func (c *CachedReader) Symbols(ctx context.Context) ([]string, error) {
	return cached(c, "symbols", func() ([]string, error) {
		return c.R.Symbols(ctx)
	})
}

func (c *CachedReader) History(ctx context.Context, symbol string, limit int) ([]models.Quote, error) {
	return cached(c, fmt.Sprintf("history/%s/%d", symbol, limit), func() ([]models.Quote, error) {
		return c.R.History(ctx, symbol, limit)
	})
}

func (c *CachedReader) Latest(ctx context.Context) ([]models.Quote, error) {
	return cached(c, "latest", func() ([]models.Quote, error) {
		return c.R.Latest(ctx)
	})
}

func (c *CachedReader) RecentReadings(ctx context.Context, n int) ([]models.Quote, error) {
	return cached(c, fmt.Sprintf("recent/%d", n), func() ([]models.Quote, error) {
		return c.R.RecentReadings(ctx, n)
	})
}
