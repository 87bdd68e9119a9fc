package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/quantified/hindcast/internal/core"
)

type cacheKey struct {
	symbol   string
	interval string
	start    int64
	end      int64
}

// Cache is a mutex-guarded in-memory bar cache keyed by the full fetch
// request (symbol, interval, start, end). The caller constructs and owns it;
// nothing in this package holds package-level state.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]core.Bar
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]core.Bar)}
}

func makeKey(symbol, interval string, start, end time.Time) cacheKey {
	return cacheKey{
		symbol:   symbol,
		interval: interval,
		start:    start.UnixNano(),
		end:      end.UnixNano(),
	}
}

// Get returns the cached bars for the request, or ok=false on a miss.
func (c *Cache) Get(symbol, interval string, start, end time.Time) ([]core.Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars, ok := c.entries[makeKey(symbol, interval, start, end)]
	return bars, ok
}

// Put stores bars under the request key, replacing any previous entry.
func (c *Cache) Put(symbol, interval string, start, end time.Time, bars []core.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[makeKey(symbol, interval, start, end)] = bars
}

// Invalidate drops every cached entry for the symbol, across all intervals
// and ranges. It returns the number of entries removed.
func (c *Cache) Invalidate(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if key.symbol == symbol {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CachedProvider wraps a Provider with a read-through Cache.
type CachedProvider struct {
	provider Provider
	cache    *Cache
}

// NewCachedProvider wraps provider through cache. A nil cache gets a fresh one.
func NewCachedProvider(provider Provider, cache *Cache) *CachedProvider {
	if cache == nil {
		cache = NewCache()
	}
	return &CachedProvider{provider: provider, cache: cache}
}

func (p *CachedProvider) Name() string {
	return p.provider.Name()
}

// FetchHistory serves the request from the cache when possible, otherwise
// delegates to the wrapped provider and caches the result. Errors are never
// cached.
func (p *CachedProvider) FetchHistory(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Bar, error) {
	if bars, ok := p.cache.Get(symbol, interval, start, end); ok {
		return bars, nil
	}

	bars, err := p.provider.FetchHistory(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	p.cache.Put(symbol, interval, start, end, bars)
	return bars, nil
}
