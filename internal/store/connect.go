// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store connects to PostgreSQL and Redis and manages the schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tune how Connect waits for the database.
type ConnectOptions struct {
	// Attempts is the number of pings before giving up. Values < 1 mean one.
	Attempts uint64
	// BaseDelay is the first backoff interval; it doubles up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultConnectOptions wait roughly half a minute for a starting database.
var DefaultConnectOptions = ConnectOptions{
	Attempts:  8,
	BaseDelay: 250 * time.Millisecond,
	MaxDelay:  5 * time.Second,
}

// pinger is the part of a pool Connect verifies.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool and pings it with exponential backoff until the
// database answers or the attempts run out.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}

	if err := waitForPing(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", opts.Attempts).
			Wrap(err)
	}
	return pool, nil
}

func waitForPing(ctx context.Context, p pinger, opts ConnectOptions) error {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultConnectOptions.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultConnectOptions.MaxDelay
	}

	backoff := retry.NewExponential(opts.BaseDelay)
	backoff = retry.WithCappedDuration(opts.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(opts.Attempts-1, backoff)

	attempt := 0
	//nolint:wrapcheck // wrapped by Connect
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
