// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/access"
	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/observability"
)

// AuthService is the subset of *auth.Service the HTTP layer calls.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	ValidLogin(ctx context.Context, email, password string) (bool, error)
	CreateSession(ctx context.Context, email string) (string, error)
	GetUserFromSessionID(ctx context.Context, sessionID string) (*auth.User, error)
	DestroySession(ctx context.Context, userID int64) error
	GetResetPasswordToken(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, resetToken, newPassword string) error
}

// Deps holds the collaborators of the router.
type Deps struct {
	Service AuthService
	// Gate guards the /api/v1 group.
	Gate *access.Gate
	// CookieName names the session cookie. Defaults to access.DefaultSessionCookie.
	CookieName string
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
	// Metrics records per-request counters. Optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

type handlers struct {
	svc      AuthService
	sessions *access.SessionAuth
	cookie   string
	secure   bool
	logger   *slog.Logger
}

// NewRouter builds the gin engine with every route wired.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Service == nil {
		return nil, oops.Code("API_INVALID_DEPENDENCY").Wrapf(auth.ErrNilDependency, "auth service is required")
	}
	if deps.Gate == nil {
		return nil, oops.Code("API_INVALID_DEPENDENCY").Wrapf(auth.ErrNilDependency, "gate is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	sessions, err := access.NewSessionAuth(deps.Service, deps.CookieName)
	if err != nil {
		return nil, err
	}

	h := &handlers{
		svc:      deps.Service,
		sessions: sessions,
		cookie:   sessions.CookieName(),
		secure:   deps.CookieSecure,
		logger:   deps.Logger,
	}

	r := gin.New()
	r.Use(tracing(), requestID(), accessLog(deps.Logger, deps.Metrics), recovery(deps.Logger))
	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not found")
	})

	r.GET("/", h.index)
	r.POST("/users", h.register)
	r.POST("/sessions", h.login)
	r.DELETE("/sessions", h.logout)
	r.GET("/profile", h.profile)
	r.POST("/reset_password", h.resetToken)
	r.PUT("/reset_password", h.updatePassword)

	v1 := r.Group("/api/v1", gate(deps.Gate))
	{
		v1.GET("/status", h.status)
		v1.GET("/unauthorized", func(c *gin.Context) {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
		})
		v1.GET("/forbidden", func(c *gin.Context) {
			respondError(c, http.StatusForbidden, "Forbidden")
		})
		v1.GET("/users/me", h.me)
		v1.POST("/auth_session/login", h.login)
		v1.DELETE("/auth_session/logout", h.sessionLogout)
	}

	return r, nil
}
