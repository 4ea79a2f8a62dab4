// Package ristretto implements the cache port on dgraph-io/ristretto, the
// in-process L1 for tool-context results.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Tool results are capped at a few kilobytes of text; size the admission
// counters for values of roughly that size.
const avgValueBytes = 4 << 10

// Cache wraps a ristretto cache. Entries expire after their TTL.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	items := max(maxCostBytes/avgValueBytes, 100)
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        items * 10,
		MaxCost:            maxCostBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value with ttl and waits until it is visible to Get. A
// non-positive ttl stores nothing.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
