// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Decision is the outcome of gating one request.
type Decision int

// Gate decisions.
const (
	// DecisionAllow lets the request through.
	DecisionAllow Decision = iota
	// DecisionUnauthorized means the request carried no credentials.
	DecisionUnauthorized
	// DecisionForbidden means the credentials resolved to no user.
	DecisionForbidden
	// DecisionUnavailable means the credential store could not be reached.
	DecisionUnavailable
)

// String returns the metric label for the decision.
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionUnauthorized:
		return "unauthorized"
	case DecisionForbidden:
		return "forbidden"
	case DecisionUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// StatusCode returns the HTTP status rejecting the request, or 0 for allow.
func (d Decision) StatusCode() int {
	switch d {
	case DecisionUnauthorized:
		return http.StatusUnauthorized
	case DecisionForbidden:
		return http.StatusForbidden
	case DecisionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return 0
	}
}

// Gate decides whether requests may proceed.
type Gate struct {
	excluded   *ExcludedPaths
	auth       Authenticator
	cookieName string
	logger     *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithSessionCookie sets the cookie that counts as a credential.
func WithSessionCookie(name string) GateOption {
	return func(g *Gate) { g.cookieName = name }
}

// WithGateLogger sets the logger for store failures.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// NewGate creates a Gate. A nil excluded list gates every path.
func NewGate(excluded *ExcludedPaths, authenticator Authenticator, opts ...GateOption) (*Gate, error) {
	if authenticator == nil {
		return nil, oops.In("access").Code("ACCESS_INVALID_DEPENDENCY").Wrapf(auth.ErrNilDependency, "authenticator is required")
	}
	g := &Gate{
		excluded:   excluded,
		auth:       authenticator,
		cookieName: DefaultSessionCookie,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Decide gates r. On DecisionAllow the user is set when the path required
// authentication and nil for excluded paths.
func (g *Gate) Decide(r *http.Request) (decision Decision, user *auth.User) {
	defer func() { GateDecisionsTotal.WithLabelValues(decision.String()).Inc() }()

	if !g.excluded.RequireAuth(r.URL.Path) {
		return DecisionAllow, nil
	}

	_, hasHeader := ExtractAuthorizationHeader(r)
	_, hasCookie := SessionCookie(r, g.cookieName)
	if !hasHeader && !hasCookie {
		return DecisionUnauthorized, nil
	}

	user, err := g.auth.CurrentUser(r)
	if err != nil {
		if auth.IsStoreUnavailable(err) {
			g.logger.WarnContext(r.Context(), "gate could not reach credential store",
				"path", r.URL.Path,
				"error", err)
			return DecisionUnavailable, nil
		}
		errutil.LogErrorContext(r.Context(), g.logger, "gate authentication failed", err)
		return DecisionForbidden, nil
	}
	if user == nil {
		return DecisionForbidden, nil
	}
	return DecisionAllow, user
}
