// Package sqlite implements the cache port on a local SQLite file, for
// single-node deployments without NATS or Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver registered as "sqlite"

	"github.com/Strob0t/taskrelay/internal/port/cache"
)

// SQLite primary result codes that mean the write did not fit.
const (
	codeFull   = 13 // SQLITE_FULL
	codeTooBig = 18 // SQLITE_TOOBIG
)

const schema = `CREATE TABLE IF NOT EXISTS kv_slots (
	key        TEXT PRIMARY KEY,
	value      BLOB    NOT NULL,
	expires_at INTEGER,
	updated_at INTEGER NOT NULL
)`

// SlotStore stores persistence slots in a SQLite table.
type SlotStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path with WAL journaling
// and a busy timeout, and ensures the slot table exists.
func Open(ctx context.Context, path string) (*SlotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare sqlite %s: %w", path, err)
		}
	}
	return &SlotStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SlotStore) Close() error {
	return s.db.Close()
}

// Get returns the slot value unless it is missing or expired.
func (s *SlotStore) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_slots WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixNano()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get slot %s: %w", key, err)
	}
	return data, true, nil
}

// Set upserts the slot. ttl <= 0 stores it without expiry.
func (s *SlotStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_slots (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt, now.UnixNano())
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// coder matches the driver's error type without importing its internals.
type coder interface {
	Code() int
}

func isStorageFull(err error) bool {
	var c coder
	if !errors.As(err, &c) {
		return false
	}
	switch c.Code() & 0xff {
	case codeFull, codeTooBig:
		return true
	}
	return false
}
