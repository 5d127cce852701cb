// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package accesstest provides test helpers for request gating.
package accesstest

import (
	"context"
	"net/http"
	"sync"

	"github.com/holomush/gatekeeper/internal/access"
	"github.com/holomush/gatekeeper/internal/auth"
)

// AllowAs is an Authenticator that resolves every request to User.
type AllowAs struct {
	User *auth.User
}

// CurrentUser returns the configured user.
func (a AllowAs) CurrentUser(*http.Request) (*auth.User, error) {
	return a.User, nil
}

// DenyAll is an Authenticator that resolves no request.
type DenyAll struct{}

// CurrentUser always returns nil.
func (DenyAll) CurrentUser(*http.Request) (*auth.User, error) {
	return nil, nil
}

// Failing is an Authenticator that always returns Err.
type Failing struct {
	Err error
}

// CurrentUser returns the configured error.
func (f Failing) CurrentUser(*http.Request) (*auth.User, error) {
	return nil, f.Err
}

// SessionMap is an in-memory access.SessionService.
type SessionMap struct {
	mu        sync.Mutex
	sessions  map[string]*auth.User
	destroyed []int64
}

// NewSessionMap creates an empty SessionMap.
func NewSessionMap() *SessionMap {
	return &SessionMap{sessions: make(map[string]*auth.User)}
}

// Add binds sessionID to user.
func (m *SessionMap) Add(sessionID string, user *auth.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = user
}

// GetUserFromSessionID returns the bound user or nil.
func (m *SessionMap) GetUserFromSessionID(_ context.Context, sessionID string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

// DestroySession unbinds every session of userID.
func (m *SessionMap) DestroySession(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.sessions {
		if u.ID == userID {
			delete(m.sessions, id)
		}
	}
	m.destroyed = append(m.destroyed, userID)
	return nil
}

// Destroyed returns the user ids passed to DestroySession.
func (m *SessionMap) Destroyed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.destroyed...)
}

var (
	_ access.Authenticator  = AllowAs{}
	_ access.Authenticator  = DenyAll{}
	_ access.Authenticator  = Failing{}
	_ access.SessionService = (*SessionMap)(nil)
)
