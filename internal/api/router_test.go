// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/gatekeeper/internal/access"
	"github.com/holomush/gatekeeper/internal/api"
	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/sqlite"
	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var defaultExcluded = []string{
	"/api/v1/status/",
	"/api/v1/unauthorized/",
	"/api/v1/forbidden/",
	"/api/v1/auth_session/login/",
}

type testAPI struct {
	router http.Handler
	svc    *auth.Service
	logs   *bytes.Buffer
}

func newTestAPI(t *testing.T, strategy string) *testAPI {
	t.Helper()

	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	migrator, err := store.NewSQLiteMigrator(db)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	t.Cleanup(func() { _ = migrator.Close() })

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := logging.Setup("gatekeeper", "test", logging.FormatJSON, "debug", logs)

	users := sqlite.NewUserStore(db)
	svc, err := auth.NewServiceWithLogger(users, hasher, auth.NewUUIDGenerator(), logger)
	require.NoError(t, err)

	authenticator, err := access.NewAuthenticator(access.Options{
		Strategy: strategy,
		Users:    users,
		Hasher:   hasher,
		Sessions: svc,
		Logger:   logger,
	})
	require.NoError(t, err)

	gate, err := access.NewGate(access.MustExcludedPaths(defaultExcluded), authenticator, access.WithGateLogger(logger))
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{Service: svc, Gate: gate, Logger: logger})
	require.NoError(t, err)

	return &testAPI{router: router, svc: svc, logs: logs}
}

type call struct {
	method string
	path   string
	form   url.Values
	cookie string
	header http.Header
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if c.form != nil {
		body = strings.NewReader(c.form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: access.DefaultSessionCookie, Value: c.cookie})
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == access.DefaultSessionCookie {
			assert.True(t, c.HttpOnly)
			return c.Value
		}
	}
	t.Fatalf("no %s cookie in response", access.DefaultSessionCookie)
	return ""
}

func creds(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func TestIndex(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)

	rec := a.do(t, call{method: http.MethodGet, path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "Bienvenue"}, decode(t, rec))
}

func TestRegister(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)

	rec := a.do(t, call{method: http.MethodPost, path: "/users", form: creds("a@x.com", "pw")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"email": "a@x.com", "message": "user created"}, decode(t, rec))

	rec = a.do(t, call{method: http.MethodPost, path: "/users", form: creds("a@x.com", "pw")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"message": "email already registered"}, decode(t, rec))

	rec = a.do(t, call{method: http.MethodPost, path: "/users", form: url.Values{"email": {"b@x.com"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password missing", decode(t, rec)["message"])
}

func TestSessionFlow(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)
	a.do(t, call{method: http.MethodPost, path: "/users", form: creds("a@x.com", "pw")})

	rec := a.do(t, call{method: http.MethodPost, path: "/sessions", form: creds("a@x.com", "wrong")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/sessions", form: creds("nobody@x.com", "pw")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/sessions", form: creds("a@x.com", "pw")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"email": "a@x.com", "message": "logged in"}, decode(t, rec))
	sid := sessionCookie(t, rec)

	rec = a.do(t, call{method: http.MethodGet, path: "/profile", cookie: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"email": "a@x.com"}, decode(t, rec))

	rec = a.do(t, call{method: http.MethodGet, path: "/profile"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodDelete, path: "/sessions", cookie: sid})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = a.do(t, call{method: http.MethodGet, path: "/profile", cookie: sid})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodDelete, path: "/sessions", cookie: sid})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)
	a.do(t, call{method: http.MethodPost, path: "/users", form: creds("a@x.com", "old")})

	rec := a.do(t, call{method: http.MethodPost, path: "/reset_password", form: url.Values{"email": {"nobody@x.com"}}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/reset_password", form: url.Values{"email": {"a@x.com"}}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "a@x.com", body["email"])
	token, _ := body["reset_token"].(string)
	require.NotEmpty(t, token)

	update := url.Values{"email": {"a@x.com"}, "reset_token": {token}, "new_password": {"new"}}
	rec = a.do(t, call{method: http.MethodPut, path: "/reset_password", form: update})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"email": "a@x.com", "message": "Password updated"}, decode(t, rec))

	rec = a.do(t, call{method: http.MethodPut, path: "/reset_password", form: update})
	assert.Equal(t, http.StatusForbidden, rec.Code, "token is single-use")

	rec = a.do(t, call{method: http.MethodPost, path: "/sessions", form: creds("a@x.com", "new")})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, call{method: http.MethodPost, path: "/sessions", form: creds("a@x.com", "old")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, call{method: http.MethodPut, path: "/reset_password", form: url.Values{"email": {"a@x.com"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func basic(email, password string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(email+":"+password)))
	return h
}

func TestAPIV1_BasicStrategy(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)
	_, err := a.svc.Register(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header http.Header
		want   int
	}{
		{"status is public", "/api/v1/status", nil, http.StatusOK},
		{"unauthorized endpoint", "/api/v1/unauthorized", nil, http.StatusUnauthorized},
		{"forbidden endpoint", "/api/v1/forbidden", nil, http.StatusForbidden},
		{"me without credentials", "/api/v1/users/me", nil, http.StatusUnauthorized},
		{"me with wrong password", "/api/v1/users/me", basic("a@x.com", "bad"), http.StatusForbidden},
		{"me with malformed header", "/api/v1/users/me", http.Header{"Authorization": {"Basic !!!"}}, http.StatusForbidden},
		{"me with valid credentials", "/api/v1/users/me", basic("a@x.com", "pw"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, call{method: http.MethodGet, path: tt.path, header: tt.header})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := a.do(t, call{method: http.MethodGet, path: "/api/v1/users/me", header: basic("a@x.com", "pw")})
	body := decode(t, rec)
	assert.Equal(t, "a@x.com", body["email"])
}

func TestAPIV1_SessionStrategy(t *testing.T) {
	a := newTestAPI(t, access.StrategySession)
	_, err := a.svc.Register(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	rec := a.do(t, call{method: http.MethodPost, path: "/api/v1/auth_session/login", form: creds("a@x.com", "pw")})
	require.Equal(t, http.StatusOK, rec.Code)
	sid := sessionCookie(t, rec)

	rec = a.do(t, call{method: http.MethodGet, path: "/api/v1/users/me", cookie: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", decode(t, rec)["email"])

	rec = a.do(t, call{method: http.MethodGet, path: "/api/v1/users/me", cookie: "bogus"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodDelete, path: "/api/v1/auth_session/logout", cookie: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{}, decode(t, rec))

	rec = a.do(t, call{method: http.MethodDelete, path: "/api/v1/auth_session/logout", cookie: sid})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestID(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)

	rec := a.do(t, call{method: http.MethodGet, path: "/"})
	assert.Len(t, rec.Header().Get(api.RequestIDHeader), 26)

	rec = a.do(t, call{method: http.MethodGet, path: "/", header: http.Header{api.RequestIDHeader: {"caller-id"}}})
	assert.Equal(t, "caller-id", rec.Header().Get(api.RequestIDHeader))
	assert.Contains(t, a.logs.String(), `"request_id":"caller-id"`)
}

func TestNotFound(t *testing.T) {
	a := newTestAPI(t, access.StrategyBasic)

	rec := a.do(t, call{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{"message": "not found"}, decode(t, rec))
}

// downService fails every call as if the store were unreachable.
type downService struct{}

var errDown = oops.Code(auth.CodeStoreUnavailable).Wrap(errors.Join(auth.ErrStoreUnavailable, errors.New("connection refused")))

func (downService) Register(context.Context, string, string) (*auth.User, error) { return nil, errDown }
func (downService) ValidLogin(context.Context, string, string) (bool, error) { return false, errDown }
func (downService) CreateSession(context.Context, string) (string, error) { return "", errDown }
func (downService) GetUserFromSessionID(context.Context, string) (*auth.User, error) {
	return nil, errDown
}
func (downService) DestroySession(context.Context, int64) error { return errDown }
func (downService) GetResetPasswordToken(context.Context, string) (string, error) {
	return "", errDown
}
func (downService) UpdatePassword(context.Context, string, string) error { return errDown }

func TestStoreUnavailable(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := logging.Setup("gatekeeper", "test", logging.FormatJSON, "debug", logs)

	sessions, err := access.NewSessionAuth(downService{}, "")
	require.NoError(t, err)
	gate, err := access.NewGate(access.MustExcludedPaths(defaultExcluded), sessions, access.WithGateLogger(logger))
	require.NoError(t, err)
	router, err := api.NewRouter(api.Deps{Service: downService{}, Gate: gate, Logger: logger})
	require.NoError(t, err)
	a := &testAPI{router: router, logs: logs}

	tests := []call{
		{method: http.MethodPost, path: "/users", form: creds("a@x.com", "pw")},
		{method: http.MethodPost, path: "/sessions", form: creds("a@x.com", "pw")},
		{method: http.MethodGet, path: "/profile", cookie: "sid"},
		{method: http.MethodPost, path: "/reset_password", form: url.Values{"email": {"a@x.com"}}},
		{method: http.MethodGet, path: "/api/v1/users/me", cookie: "sid"},
	}
	for _, c := range tests {
		t.Run(c.method+" "+c.path, func(t *testing.T) {
			rec := a.do(t, c)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
	assert.Contains(t, logs.String(), auth.CodeStoreUnavailable)
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(api.Deps{})
	assert.ErrorIs(t, err, auth.ErrNilDependency)

	_, err = api.NewRouter(api.Deps{Service: downService{}})
	assert.ErrorIs(t, err, auth.ErrNilDependency)
}
