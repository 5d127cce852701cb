// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpserver runs an http.Handler on a TCP listener with graceful
// shutdown. The API and observability servers are both built on it.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

const readHeaderTimeout = 10 * time.Second

// Server serves one handler. Name labels its log lines and errors.
type Server struct {
	name    string
	addr    string
	handler http.Handler
	logger  *slog.Logger

	listener net.Listener
	srv      *http.Server
	running  atomic.Bool
}

// New creates a stopped server. addr is "host:port"; port 0 picks a free
// port. A nil logger uses slog.Default.
func New(name, addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{name: name, addr: addr, handler: handler, logger: logger}
}

// Start listens and serves in the background. The returned channel receives
// a serve failure, if one happens, and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").
			With("server", s.name).
			Errorf("%s server already running", s.name)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").
			With("server", s.name).
			With("addr", s.addr).
			Wrap(err)
	}
	s.listener = listener
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func(srv *http.Server) {
		defer close(errCh)
		err := srv.Serve(listener)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.logger.Error("http server failed", "server", s.name, "error", err)
		errCh <- err
	}(s.srv)

	s.logger.Info("http server listening", "server", s.name, "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires. Stopping a server that
// is not running does nothing.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("HTTP_SHUTDOWN_FAILED").With("server", s.name).Wrap(err)
	}
	s.logger.Info("http server stopped", "server", s.name)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
