// Package cache is a short-TTL in-memory cache for candle series, keyed by
// (pair, timeframe, current minute). It sits in front of the market data
// source and absorbs bursts of polling calls: within one TTL window at most
// one live fetch happens per key when callers check the cache first.
package cache

import (
	"fmt"
	"sync"
	"time"

	"signal-enginev1/internal/model"
)

// DefaultTTL is how long an entry stays fresh unless overridden on Set.
const DefaultTTL = 5 * time.Second

type entry struct {
	data     []model.Candle
	storedAt time.Time
	ttl      time.Duration
}

// Cache is safe for concurrent use. Writes are idempotent overwrites, so
// concurrent Sets for the same key are last-writer-wins.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// key embeds the current minute, so entries implicitly roll over on minute
// boundaries in addition to the explicit TTL check on read.
func (c *Cache) key(pair string, timeframe int) string {
	return fmt.Sprintf("%s-%d-%s", pair, timeframe, c.now().UTC().Format("2006-01-02-15-04"))
}

// Get returns the cached series for (pair, timeframe) if present and fresh.
// Expired entries are evicted on read.
func (c *Cache) Get(pair string, timeframe int) ([]model.Candle, bool) {
	k := c.key(pair, timeframe)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > e.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return e.data, true
}

// Set stores a series under (pair, timeframe, current minute).
// ttl <= 0 selects DefaultTTL.
func (c *Cache) Set(pair string, timeframe int, data []model.Candle, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := c.key(pair, timeframe)

	c.mu.Lock()
	c.entries[k] = entry{data: data, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}
