// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store bootstraps database connections and manages the schema.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	// Register the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// ConnectOptions bounds the startup connection attempts.
type ConnectOptions struct {
	// Retries is the number of attempts after the first one.
	Retries uint64
	// Backoff is the initial delay, doubled after every failed attempt.
	Backoff time.Duration
	// Timeout bounds each attempt.
	Timeout time.Duration
}

// DefaultConnectOptions are used for zero fields of ConnectOptions.
var DefaultConnectOptions = ConnectOptions{
	Retries: 5,
	Backoff: 500 * time.Millisecond,
	Timeout: 5 * time.Second,
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Backoff <= 0 {
		o.Backoff = DefaultConnectOptions.Backoff
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultConnectOptions.Timeout
	}
	return o
}

// ConnectPostgres opens a pgx pool and pings it, retrying with exponential
// backoff while the server is unreachable. A malformed URL fails immediately.
func ConnectPostgres(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.Retries, retry.NewExponential(opts.Backoff))

	var pool *pgxpool.Pool
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		p, err := pgxpool.NewWithConfig(attemptCtx, cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := p.Ping(attemptCtx); err != nil {
			p.Close()
			slog.WarnContext(ctx, "database not reachable, retrying",
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "connect to postgres").
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}

// OpenSQLite opens a SQLite database at path (":memory:" for a private
// in-memory database). The handle is limited to one connection so that
// transactions serialize and an in-memory database is shared by all callers.
// Transactions start with BEGIN IMMEDIATE.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := sqliteDSN(path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").
			With("operation", "open sqlite").
			With("path", path).
			Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("DB_OPEN_FAILED").
			With("operation", "ping sqlite").
			With("path", path).
			Wrap(err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == ":memory:" || path == "" {
		path = "file::memory:"
	} else if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
