// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/gatekeeper/internal/store"
	"github.com/holomush/gatekeeper/internal/store/storetest"
)

// testPool reaches a migrated database shared by every test in the package.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pg, err := storetest.StartPostgres(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start postgres:", err)
		return 1
	}
	defer pg.Terminate(ctx)

	if err := pg.Migrate(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		return 1
	}

	pool, err := store.ConnectPostgres(ctx, pg.URL, store.ConnectOptions{Retries: 3})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		return 1
	}
	defer pool.Close()
	testPool = pool

	return m.Run()
}
