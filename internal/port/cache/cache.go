// Package cache defines the port interface for key-value storage. The queue
// persists its mirror through it as an opaque slot.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStorageFull is returned by a backend that refused a write because it
// ran out of space. Callers may shrink the payload and retry.
var ErrStorageFull = errors.New("storage full")

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
