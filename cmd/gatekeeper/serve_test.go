// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/httpserver"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:  "127.0.0.1:0",
		LogFormat: "json",
		LogLevel:  "info",
		Database: config.Database{
			Driver:      config.DriverSQLite,
			URL:         ":memory:",
			AutoMigrate: true,
		},
		Auth: config.Auth{
			Type:          "basic",
			SessionCookie: "session_id",
			Hasher:        config.HasherBcrypt,
			BcryptCost:    bcrypt.MinCost,
			ExcludedPaths: config.DefaultExcludedPaths,
		},
	}
}

func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	out, logs := new(bytes.Buffer), new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(logs)
	return cmd, out, logs
}

// fakeServer is a Server and ObservabilityServer whose Start never binds.
type fakeServer struct {
	startErr error
	errCh    chan error
	stopped  atomic.Bool
}

func newFakeServer(startErr error) *fakeServer {
	return &fakeServer{startErr: startErr, errCh: make(chan error, 1)}
}

func (f *fakeServer) Start() (<-chan error, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.errCh, nil
}

func (f *fakeServer) Stop(context.Context) error {
	f.stopped.Store(true)
	return nil
}

func (f *fakeServer) Addr() string                     { return "fake:0" }
func (f *fakeServer) Metrics() *observability.Metrics { return nil }

// notifyingServer reports the bound address of a real server once started.
type notifyingServer struct {
	ObservabilityServer
	started chan string
}

func (n *notifyingServer) Start() (<-chan error, error) {
	ch, err := n.ObservabilityServer.Start()
	if err == nil {
		n.started <- n.ObservabilityServer.Addr()
	}
	return ch, err
}

// apiServerOnly adapts a Server to ObservabilityServer for notifyingServer.
type apiServerOnly struct{ Server }

func (apiServerOnly) Metrics() *observability.Metrics { return nil }

func waitAddr(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case addr := <-ch:
		return addr
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
		return ""
	}
}

func TestRunServe_EndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	cmd, out, logs := testCommand()

	apiStarted := make(chan string, 1)
	obsStarted := make(chan string, 1)
	deps := &ServeDeps{
		APIServerFactory: func(addr string, handler http.Handler, logger *slog.Logger) Server {
			return &notifyingServer{
				ObservabilityServer: apiServerOnly{Server: httpserver.New("api", addr, handler, logger)},
				started:             apiStarted,
			}
		},
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return &notifyingServer{
				ObservabilityServer: observability.NewServer(addr, ready, observability.WithLogger(logger)),
				started:             obsStarted,
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cfg, cmd, deps) }()

	obsAddr := waitAddr(t, obsStarted)
	apiAddr := waitAddr(t, apiStarted)
	client := &http.Client{
		Timeout:       5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	form := url.Values{"email": {"bob@example.com"}, "password": {"pw"}}
	resp, err := client.PostForm("http://"+apiAddr+"/users", form)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, "http://"+apiAddr+"/api/v1/users/me", nil)
	require.NoError(t, err)
	req.SetBasicAuth("bob@example.com", "pw")
	resp, err = client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + obsAddr + "/healthz/readiness")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err = client.Get("http://" + obsAddr + "/metrics")
	require.NoError(t, err)
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, body.String(), "gatekeeper_http_requests_total")
	assert.Contains(t, body.String(), "gatekeeper_auth_operations_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}

	assert.Contains(t, out.String(), "Gatekeeper started")
	assert.Contains(t, logs.String(), `"msg":"shutdown complete"`)
	assert.Contains(t, logs.String(), `"service":"gatekeeper"`)
}

func TestRunServe_ContextCancelledBeforeStart(t *testing.T) {
	cmd, out, _ := testCommand()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api, obs := newFakeServer(nil), newFakeServer(nil)
	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	err := runServeWithDeps(ctx, cfg, cmd, &ServeDeps{
		APIServerFactory: func(string, http.Handler, *slog.Logger) Server { return api },
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return obs
		},
	})
	require.NoError(t, err)
	assert.True(t, api.stopped.Load())
	assert.True(t, obs.stopped.Load())
	assert.Contains(t, out.String(), "Gatekeeper started")
}

func TestRunServe_StoreOpenFailure(t *testing.T) {
	cmd, _, _ := testCommand()
	err := runServeWithDeps(context.Background(), testConfig(), cmd, &ServeDeps{
		StoreOpener: func(context.Context, config.Database, *slog.Logger) (*StoreHandle, error) {
			return nil, oops.Code("DB_CONNECT_FAILED").Errorf("connection refused")
		},
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestRunServe_ObservabilityStartFailure(t *testing.T) {
	cmd, _, _ := testCommand()
	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	api := newFakeServer(nil)

	err := runServeWithDeps(context.Background(), cfg, cmd, &ServeDeps{
		APIServerFactory: func(string, http.Handler, *slog.Logger) Server { return api },
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return newFakeServer(errors.New("address in use"))
		},
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SERVE_OBSERVABILITY_FAILED")
	assert.False(t, api.stopped.Load(), "api server is never started")
}

func TestRunServe_APIStartFailureStopsObservability(t *testing.T) {
	cmd, _, _ := testCommand()
	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	obs := newFakeServer(nil)

	err := runServeWithDeps(context.Background(), cfg, cmd, &ServeDeps{
		APIServerFactory: func(string, http.Handler, *slog.Logger) Server {
			return newFakeServer(errors.New("address in use"))
		},
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return obs
		},
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SERVE_API_FAILED")
	assert.True(t, obs.stopped.Load())
}

func TestRunServe_ServerErrorTriggersShutdown(t *testing.T) {
	cmd, _, logs := testCommand()
	api := newFakeServer(nil)
	api.errCh <- errors.New("listener died")

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(context.Background(), testConfig(), cmd, &ServeDeps{
			APIServerFactory: func(string, http.Handler, *slog.Logger) Server { return api },
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down after a server error")
	}
	assert.True(t, api.stopped.Load())
	assert.Contains(t, logs.String(), "server error, triggering shutdown")
}

func TestRunServe_UnknownStrategy(t *testing.T) {
	cmd, _, _ := testCommand()
	cfg := testConfig()
	cfg.Auth.Type = "jwt"

	err := runServeWithDeps(context.Background(), cfg, cmd, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "ACCESS_UNKNOWN_STRATEGY")
}

func TestRunServe_InvalidBcryptCost(t *testing.T) {
	cmd, _, _ := testCommand()
	cfg := testConfig()
	cfg.Auth.BcryptCost = 99

	err := runServeWithDeps(context.Background(), cfg, cmd, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_BCRYPT_COST")
}

func TestOpenStore_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "gatekeeper.db")
	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))

	handle, err := openStore(context.Background(), config.Database{
		Driver:      config.DriverSQLite,
		URL:         path,
		AutoMigrate: true,
	}, logger)
	require.NoError(t, err)
	defer handle.Close()

	ctx := context.Background()
	require.NoError(t, handle.Ping(ctx))

	user, err := handle.Users.AddUser(ctx, "bob@example.com", []byte("hash"))
	require.NoError(t, err)
	found, err := handle.Users.FindByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestOpenStore_WithoutMigrationsHasNoSchema(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
	handle, err := openStore(context.Background(), config.Database{
		Driver: config.DriverSQLite,
		URL:    ":memory:",
	}, logger)
	require.NoError(t, err)
	defer handle.Close()

	_, err = handle.Users.AddUser(context.Background(), "bob@example.com", []byte("hash"))
	require.Error(t, err)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.Database{Driver: "mysql"}, slog.Default())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestOpenStore_PostgresUnreachable(t *testing.T) {
	_, err := openStore(context.Background(), config.Database{
		Driver:         config.DriverPostgres,
		URL:            "postgres://user:pw@127.0.0.1:1/gatekeeper?sslmode=disable",
		ConnectRetries: 0,
		ConnectTimeout: 500 * time.Millisecond,
	}, slog.Default())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestMonitorServerErrors(t *testing.T) {
	tests := []struct {
		name       string
		send       func(chan error)
		wantCancel bool
	}{
		{"error cancels", func(ch chan error) { ch <- errors.New("boom") }, true},
		{"nil error does not cancel", func(ch chan error) { ch <- nil }, false},
		{"closed channel does not cancel", func(ch chan error) { close(ch) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errCh := make(chan error, 1)
			tt.send(errCh)

			done := make(chan struct{})
			go func() {
				monitorServerErrors(ctx, cancel, errCh, "test-server")
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("monitorServerErrors did not return")
			}
			assert.Equal(t, tt.wantCancel, ctx.Err() != nil)
		})
	}
}

func TestMonitorServerErrors_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitorServerErrors(ctx, cancel, make(chan error), "test-server")
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitorServerErrors did not exit on cancellation")
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--auth-type", "jwt"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, buf.String(), "auth.type")
}
