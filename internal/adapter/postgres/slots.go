package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/taskrelay/internal/port/cache"
)

// SQLSTATE codes reported when the server has no room for a write.
const (
	sqlStateDiskFull            = "53100"
	sqlStateOutOfMemory         = "53200"
	sqlStateProgramLimitExceeds = "54000"
)

// SlotStore implements the cache port on the kv_slots table.
type SlotStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewSlotStore creates a slot store over an open pool. Migrations must have run.
func NewSlotStore(pool *pgxpool.Pool) *SlotStore {
	return &SlotStore{pool: pool, now: time.Now}
}

// Get returns the slot value unless it is missing or expired.
func (s *SlotStore) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT value FROM kv_slots WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now()).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get slot %s: %w", key, err)
	}
	return data, true, nil
}

// Set upserts the slot. ttl <= 0 stores it without expiry.
func (s *SlotStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_slots (key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		key, value, expiry(s.now(), ttl))
	if err != nil {
		if isStorageFull(err) {
			return fmt.Errorf("set slot %s: %w: %w", key, cache.ErrStorageFull, err)
		}
		return fmt.Errorf("set slot %s: %w", key, err)
	}
	return nil
}

// Delete removes the slot. Missing keys are not an error.
func (s *SlotStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_slots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes expired slots and returns how many were deleted.
func (s *SlotStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_slots WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)
	return &at
}

func isStorageFull(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateDiskFull, sqlStateOutOfMemory, sqlStateProgramLimitExceeds:
		return true
	}
	return false
}
