// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/access"
	"github.com/holomush/gatekeeper/internal/api"
	"github.com/holomush/gatekeeper/internal/auth"
	authpg "github.com/holomush/gatekeeper/internal/auth/postgres"
	authsqlite "github.com/holomush/gatekeeper/internal/auth/sqlite"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/httpserver"
	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/internal/store"
)

const (
	serviceName     = "gatekeeper"
	shutdownTimeout = 5 * time.Second
)

var errAPINotServing = errors.New("api server not serving")

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Connect to the credential store and serve the authentication API,
plus metrics and health probes on the metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps builds the service graph and serves until a signal, a
// server failure or ctx cancellation. If deps is nil, default
// implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) Server {
			return httpserver.New("api", addr, handler, logger)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, observability.WithLogger(logger))
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.Setup(serviceName, version, cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	logger.Info("starting gatekeeper",
		"http_addr", cfg.HTTPAddr,
		"database_driver", cfg.Database.Driver,
		"auth_type", cfg.Auth.Type,
		"hasher", cfg.Auth.Hasher,
	)

	handle, err := deps.StoreOpener(ctx, cfg.Database, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer handle.Close()
	logger.Info("connected to credential store", "driver", cfg.Database.Driver)

	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	svc, err := auth.NewServiceWithLogger(handle.Users, hasher, auth.NewUUIDGenerator(), logger)
	if err != nil {
		return err
	}
	authenticator, err := access.NewAuthenticator(access.Options{
		Strategy:   cfg.Auth.Type,
		CookieName: cfg.Auth.SessionCookie,
		Users:      handle.Users,
		Hasher:     hasher,
		Sessions:   svc,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	excluded, err := access.NewExcludedPaths(cfg.Auth.ExcludedPaths)
	if err != nil {
		return err
	}
	gate, err := access.NewGate(excluded, authenticator,
		access.WithSessionCookie(cfg.Auth.SessionCookie),
		access.WithGateLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var apiUp atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		ready := func(probeCtx context.Context) error {
			if !apiUp.Load() {
				return errAPINotServing
			}
			return handle.Ping(probeCtx)
		}
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready, logger)
		metrics = obsServer.Metrics()
	}

	router, err := api.NewRouter(api.Deps{
		Service:      svc,
		Gate:         gate,
		CookieName:   cfg.Auth.SessionCookie,
		CookieSecure: cfg.Auth.CookieSecure,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_OBSERVABILITY_FAILED").
				With("addr", cfg.MetricsAddr).
				Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer := deps.APIServerFactory(cfg.HTTPAddr, router, logger)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServer(logger, obsServer, "observability")
		return oops.Code("SERVE_API_FAILED").
			With("addr", cfg.HTTPAddr).
			Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")
	apiUp.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatekeeper started")
	logger.Info("gatekeeper ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	apiUp.Store(false)
	stopServer(logger, apiServer, "api")
	stopServer(logger, obsServer, "observability")

	logger.Info("shutdown complete")
	return nil
}

// stopServer stops s within shutdownTimeout. A nil s is ignored.
func stopServer(logger *slog.Logger, s Server, name string) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// openStore connects to the configured database, applies migrations when
// auto_migrate is set, and wraps it in the matching CredentialStore.
func openStore(ctx context.Context, db config.Database, logger *slog.Logger) (*StoreHandle, error) {
	switch db.Driver {
	case config.DriverPostgres:
		pool, err := store.ConnectPostgres(ctx, db.URL, store.ConnectOptions{
			Retries: db.ConnectRetries,
			Timeout: db.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		if db.AutoMigrate {
			if err := migrateUp(db.URL, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &StoreHandle{
			Users: authpg.NewUserStore(pool),
			Ping:  pool.Ping,
			Close: pool.Close,
		}, nil

	case config.DriverSQLite:
		if err := ensureDatabaseDir(db); err != nil {
			return nil, err
		}
		sqlDB, err := store.OpenSQLite(db.URL)
		if err != nil {
			return nil, err
		}
		if db.AutoMigrate {
			// Closing this migrator would close sqlDB.
			m, err := store.NewSQLiteMigrator(sqlDB)
			if err == nil {
				err = m.Up()
			}
			if err != nil {
				_ = sqlDB.Close() //nolint:errcheck // migration error takes precedence
				return nil, err
			}
			logger.Info("migrations applied", "driver", db.Driver)
		}
		return &StoreHandle{
			Users: authsqlite.NewUserStore(sqlDB),
			Ping:  sqlDB.PingContext,
			Close: func() {
				if err := sqlDB.Close(); err != nil {
					logger.Warn("error closing sqlite database", "error", err)
				}
			},
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "database.driver").
			With("value", db.Driver).
			Errorf("unsupported database driver %q", db.Driver)
	}
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	logger.Info("migrations applied", "driver", string(m.Dialect()))
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error, so that a
// failing server shuts the whole process down. It exits when an error is
// received, the channel is closed, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
