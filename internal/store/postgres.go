// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package store opens Skycast's storage backends and owns the PostgreSQL
// schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tune startup connection attempts.
type ConnectOptions struct {
	// Attempts is the maximum number of connection attempts.
	Attempts uint64
	// BaseDelay is the first backoff delay; it doubles on each attempt.
	BaseDelay time.Duration
	Logger    *slog.Logger
}

// DefaultConnectOptions retries for roughly half a minute.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{Attempts: 6, BaseDelay: 500 * time.Millisecond}
}

func (o ConnectOptions) backoff() retry.Backoff {
	attempts, base := o.Attempts, o.BaseDelay
	if attempts == 0 {
		attempts = 1
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(10*time.Second, b)
	return retry.WithMaxRetries(attempts-1, b)
}

func (o ConnectOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// connectWithRetry calls connect until it succeeds, the attempts run out
// or ctx ends.
func connectWithRetry(ctx context.Context, target string, opts ConnectOptions, connect func(context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, opts.backoff(), func(ctx context.Context) error {
		attempt++
		if err := connect(ctx); err != nil {
			opts.logger().WarnContext(ctx, "storage connect failed",
				"target", target, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// OpenPostgres creates a pgx pool for dsn and waits until the database
// answers a ping.
func OpenPostgres(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("STORAGE_CONFIG_INVALID").With("driver", "postgres").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORAGE_CONNECT_FAILED").With("driver", "postgres").Wrap(err)
	}

	err = connectWithRetry(ctx, "postgres", opts, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORAGE_CONNECT_FAILED").
			With("driver", "postgres").
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}
	return pool, nil
}
