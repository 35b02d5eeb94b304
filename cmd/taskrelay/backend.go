package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cfnats "github.com/Strob0t/taskrelay/internal/adapter/nats"
	"github.com/Strob0t/taskrelay/internal/adapter/natskv"
	"github.com/Strob0t/taskrelay/internal/adapter/postgres"
	"github.com/Strob0t/taskrelay/internal/adapter/ristretto"
	"github.com/Strob0t/taskrelay/internal/adapter/sqlite"
	"github.com/Strob0t/taskrelay/internal/adapter/tiered"
	"github.com/Strob0t/taskrelay/internal/config"
	"github.com/Strob0t/taskrelay/internal/port/cache"
)

// tieredL1Expire bounds how long the in-process copy of a slot is trusted.
const tieredL1Expire = time.Minute

// openStore builds the persistence backend named by cfg.Persistence.Backend.
// The returned cleanup releases whatever the backend holds open.
func openStore(ctx context.Context, cfg *config.Config, mq *cfnats.Queue) (cache.Cache, func(), error) {
	l1Bytes := cfg.Persistence.L1MaxSizeMB << 20

	switch cfg.Persistence.Backend {
	case config.BackendMemory:
		c, err := ristretto.New(l1Bytes)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil

	case config.BackendNATS:
		if mq == nil {
			return nil, nil, fmt.Errorf("backend %s: nats is not connected", cfg.Persistence.Backend)
		}
		kv, err := mq.KeyValue(ctx, cfg.Persistence.Bucket, 0)
		if err != nil {
			return nil, nil, err
		}
		return natskv.New(kv), func() {}, nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
		store := postgres.NewSlotStore(pool)
		if n, err := store.PurgeExpired(ctx); err != nil {
			slog.Warn("purge expired slots", "error", err)
		} else if n > 0 {
			slog.Info("purged expired slots", "count", n)
		}
		return store, pool.Close, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Persistence.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendTiered:
		if mq == nil {
			return nil, nil, fmt.Errorf("backend %s: nats is not connected", cfg.Persistence.Backend)
		}
		l1, err := ristretto.New(l1Bytes)
		if err != nil {
			return nil, nil, err
		}
		l2, err := natskv.Open(ctx, mq.JetStream(), cfg.Persistence.Bucket, 0)
		if err != nil {
			l1.Close()
			return nil, nil, err
		}
		return tiered.New(l1, l2, tieredL1Expire), l1.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
}
