// Package ristretto implements the cache port with an in-process ristretto
// cache. It serves as the memory persistence backend and as L1 of the
// tiered backend.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/taskrelay/internal/port/cache"
)

// Cache wraps a ristretto cache keyed by slot name.
type Cache struct {
	c       *ristretto.Cache[string, []byte]
	maxCost int64
}

// New creates a ristretto-backed cache. maxCostBytes bounds the total size of
// stored values in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes < 1024 {
		maxCostBytes = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c, maxCost: maxCostBytes}, nil
}

// Get retrieves a value.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL (0 keeps it until evicted) and waits
// for the write to become visible. A value larger than the cache, or one the
// admission policy refuses, reports cache.ErrStorageFull.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost > c.maxCost {
		return fmt.Errorf("ristretto: %d bytes exceeds capacity %d: %w", cost, c.maxCost, cache.ErrStorageFull)
	}
	if !c.c.SetWithTTL(key, value, cost, ttl) {
		return fmt.Errorf("ristretto: write dropped: %w", cache.ErrStorageFull)
	}
	c.c.Wait()
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	c.c.Wait()
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
