// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener connects to the configured credential store.
	// Default: openStore
	StoreOpener func(ctx context.Context, db config.Database, logger *slog.Logger) (*StoreHandle, error)

	// APIServerFactory creates the HTTP API server.
	// Default: httpserver.New
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) Server

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

// StoreHandle is an open credential store and its lifecycle hooks.
type StoreHandle struct {
	Users auth.CredentialStore
	// Ping reports whether the database is reachable.
	Ping func(ctx context.Context) error
	// Close releases the connection pool.
	Close func()
}

// Server interface wraps the methods used from api.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
}
