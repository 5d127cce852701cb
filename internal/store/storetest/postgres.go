// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package storetest starts throwaway PostgreSQL databases for integration
// tests.
package storetest

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/gatekeeper/internal/store"
)

const image = "postgres:16-alpine"

// Postgres is a running PostgreSQL container.
type Postgres struct {
	URL       string
	container *postgres.PostgresContainer
}

// StartPostgres runs a PostgreSQL container and waits until it accepts
// connections. Callers must Terminate it.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("gatekeeper_test"),
		postgres.WithUsername("gatekeeper"),
		postgres.WithPassword("gatekeeper"),
		testcontainers.WithWaitStrategy(
			// postgres logs readiness twice: once for the init server, once for the real one
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.Code("TEST_CONTAINER_FAILED").With("image", image).Wrap(err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, oops.Code("TEST_CONTAINER_FAILED").With("operation", "connection string").Wrap(err)
	}
	return &Postgres{URL: url, container: container}, nil
}

// Migrate applies every embedded migration.
func (p *Postgres) Migrate() error {
	migrator, err := store.NewMigrator(p.URL)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()
	return migrator.Up()
}

// Terminate stops and removes the container. Safe on a nil receiver.
func (p *Postgres) Terminate(ctx context.Context) {
	if p == nil || p.container == nil {
		return
	}
	_ = p.container.Terminate(ctx)
}
