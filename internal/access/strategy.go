// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Strategy names accepted by NewAuthenticator.
const (
	StrategyBasic   = "basic"
	StrategySession = "session"
)

// DefaultSessionCookie is the cookie carrying the session id.
const DefaultSessionCookie = "session_id"

// Authenticator resolves the user behind a request. A nil user with a nil
// error means the request is not authenticated. The error is reserved for a
// store that cannot be reached.
type Authenticator interface {
	CurrentUser(r *http.Request) (*auth.User, error)
}

// UserFinder looks up candidate users for Basic credentials.
type UserFinder interface {
	FindUsersByEmail(ctx context.Context, email string) ([]*auth.User, error)
}

// SessionService resolves and revokes sessions. *auth.Service implements it.
type SessionService interface {
	GetUserFromSessionID(ctx context.Context, sessionID string) (*auth.User, error)
	DestroySession(ctx context.Context, userID int64) error
}

// Options configures NewAuthenticator.
type Options struct {
	// Strategy is StrategyBasic or StrategySession. Empty means basic.
	Strategy string
	// CookieName defaults to DefaultSessionCookie.
	CookieName string

	Users    UserFinder
	Hasher   auth.PasswordHasher
	Sessions SessionService
	Logger   *slog.Logger
}

// NewAuthenticator builds the strategy named by opts.Strategy.
func NewAuthenticator(opts Options) (Authenticator, error) {
	switch opts.Strategy {
	case "", StrategyBasic:
		b, err := NewBasicAuth(opts.Users, opts.Hasher, opts.Logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case StrategySession:
		s, err := NewSessionAuth(opts.Sessions, opts.CookieName)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, oops.In("access").
			Code("ACCESS_UNKNOWN_STRATEGY").
			With("strategy", opts.Strategy).
			Errorf("unknown authentication strategy %q", opts.Strategy)
	}
}

// BasicAuth authenticates requests with HTTP Basic credentials checked
// against the credential store.
type BasicAuth struct {
	users     UserFinder
	hasher    auth.PasswordHasher
	logger    *slog.Logger
	decoyHash []byte
}

// NewBasicAuth creates a BasicAuth. A nil logger uses slog.Default.
func NewBasicAuth(users UserFinder, hasher auth.PasswordHasher, logger *slog.Logger) (*BasicAuth, error) {
	if users == nil {
		return nil, oops.In("access").Code("ACCESS_INVALID_DEPENDENCY").Wrapf(auth.ErrNilDependency, "user finder is required")
	}
	if hasher == nil {
		return nil, oops.In("access").Code("ACCESS_INVALID_DEPENDENCY").Wrapf(auth.ErrNilDependency, "password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	decoy, err := auth.NewDecoyHash(hasher)
	if err != nil {
		return nil, oops.In("access").With("operation", "prepare basic auth").Wrap(err)
	}
	return &BasicAuth{users: users, hasher: hasher, logger: logger, decoyHash: decoy}, nil
}

// ResolveUserFromCredentials returns the first user with the email whose
// password verifies, or nil. An unknown email still costs one verification.
// Lookup failures are logged and yield nil.
func (b *BasicAuth) ResolveUserFromCredentials(ctx context.Context, email, password string) *auth.User {
	if email == "" || password == "" {
		return nil
	}

	users, err := b.users.FindUsersByEmail(ctx, email)
	if err != nil {
		errutil.LogErrorContext(ctx, b.logger, "basic auth lookup failed", err)
		return nil
	}
	if len(users) == 0 {
		b.hasher.Verify(password, b.decoyHash)
		return nil
	}
	for _, u := range users {
		if b.hasher.Verify(password, u.HashedPassword) {
			return u
		}
	}
	return nil
}

// CurrentUser resolves the Authorization header. It never returns an error.
func (b *BasicAuth) CurrentUser(r *http.Request) (*auth.User, error) {
	header, ok := ExtractAuthorizationHeader(r)
	if !ok {
		return nil, nil
	}
	token, ok := ExtractBase64Credentials(header)
	if !ok {
		return nil, nil
	}
	decoded, ok := DecodeBase64(token)
	if !ok {
		return nil, nil
	}
	email, password, ok := SplitCredentials(decoded)
	if !ok {
		return nil, nil
	}
	return b.ResolveUserFromCredentials(r.Context(), email, password), nil
}

// SessionAuth authenticates requests by their session cookie.
type SessionAuth struct {
	sessions   SessionService
	cookieName string
}

// NewSessionAuth creates a SessionAuth reading cookieName
// (DefaultSessionCookie when empty).
func NewSessionAuth(sessions SessionService, cookieName string) (*SessionAuth, error) {
	if sessions == nil {
		return nil, oops.In("access").Code("ACCESS_INVALID_DEPENDENCY").Wrapf(auth.ErrNilDependency, "session service is required")
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return &SessionAuth{sessions: sessions, cookieName: cookieName}, nil
}

// CookieName returns the session cookie name.
func (s *SessionAuth) CookieName() string {
	return s.cookieName
}

// SessionCookie returns the request's session cookie value.
func (s *SessionAuth) SessionCookie(r *http.Request) (string, bool) {
	return SessionCookie(r, s.cookieName)
}

// CurrentUser resolves the session cookie to its user.
func (s *SessionAuth) CurrentUser(r *http.Request) (*auth.User, error) {
	sessionID, ok := s.SessionCookie(r)
	if !ok {
		return nil, nil
	}
	user, err := s.sessions.GetUserFromSessionID(r.Context(), sessionID)
	if err != nil {
		return nil, oops.In("access").With("operation", "resolve session cookie").Wrap(err)
	}
	return user, nil
}

// DestroySession ends the session named by the request's cookie. It reports
// false when there is no cookie or the cookie resolves to no user.
func (s *SessionAuth) DestroySession(r *http.Request) (bool, error) {
	user, err := s.CurrentUser(r)
	if err != nil || user == nil {
		return false, err
	}
	if err := s.sessions.DestroySession(r.Context(), user.ID); err != nil {
		return false, oops.In("access").
			With("operation", "destroy session").
			With("user_id", user.ID).
			Wrap(err)
	}
	return true, nil
}

var (
	_ Authenticator = (*BasicAuth)(nil)
	_ Authenticator = (*SessionAuth)(nil)
)
