// Package natskv stores persistence slots in a NATS JetStream key/value bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/taskrelay/internal/port/cache"
)

// JetStream error codes that mean the bucket or account has no room for the write.
const (
	errCodeInsufficientResources jetstream.ErrorCode = 10023
	errCodeStorageExceeded       jetstream.ErrorCode = 10047
	errCodeMessageTooLarge       jetstream.ErrorCode = 10054
	errCodeStoreFailed           jetstream.ErrorCode = 10077
)

// Cache wraps a JetStream KeyValue bucket.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a cache over an existing bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Open creates the bucket if needed and returns a cache over it. Only the
// latest revision of each key is kept. maxBytes <= 0 leaves the bucket unbounded.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, maxBytes int64) (*Cache, error) {
	cfg := jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "taskrelay persistence slots",
		History:     1,
	}
	if maxBytes > 0 {
		cfg.MaxBytes = maxBytes
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return New(kv), nil
}

// Get retrieves a slot value.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores a slot value. TTL is managed at bucket level and ignored here.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, key, value); err != nil {
		if isStorageFull(err) {
			return fmt.Errorf("kv put %s: %w: %w", key, cache.ErrStorageFull, err)
		}
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a slot value. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if err == nil || errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return fmt.Errorf("kv delete %s: %w", key, err)
}

func isStorageFull(err error) bool {
	if errors.Is(err, nats.ErrMaxPayload) {
		return true
	}
	var apiErr *jetstream.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode {
	case errCodeInsufficientResources, errCodeStorageExceeded, errCodeMessageTooLarge, errCodeStoreFailed:
		return true
	}
	return false
}
