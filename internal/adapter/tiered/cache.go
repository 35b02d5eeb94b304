// Package tiered layers a fast local slot cache over a durable remote one.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/taskrelay/internal/port/cache"
)

// Cache combines an L1 (in-process) and L2 (durable) backend. L2 is the
// source of truth: writes land there first and L1 never holds a value L2
// refused.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. l1Expire bounds how long an entry lives in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2. An L2 hit is copied into L1. L1 failures degrade to
// an L2 read.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err == nil && found {
		return val, true, nil
	}
	if err != nil {
		slog.Debug("tiered: l1 get failed", "key", key, "error", err)
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if err := c.l1.Set(ctx, key, val, c.l1Expire); err != nil {
		slog.Debug("tiered: l1 backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

// Set writes L2, then L1. When L2 fails the stale L1 entry is dropped so a
// later Get cannot serve a value that was never persisted.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		_ = c.l1.Delete(ctx, key)
		return err
	}
	l1TTL := c.l1Expire
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		if !errors.Is(err, cache.ErrStorageFull) {
			slog.Debug("tiered: l1 set failed", "key", key, "error", err)
		}
		_ = c.l1.Delete(ctx, key)
	}
	return nil
}

// Delete removes from both levels, L1 first.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}
