// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"sort"

	"github.com/samber/oops"
)

// User is a registered account.
type User struct {
	ID             int64
	Email          string
	HashedPassword []byte
	SessionID      *string
	ResetToken     *string
}

// HasSession reports whether the user currently holds a session.
func (u *User) HasSession() bool {
	return u.SessionID != nil
}

// HasPendingReset reports whether a reset token has been issued and not yet used.
func (u *User) HasPendingReset() bool {
	return u.ResetToken != nil
}

// Updatable user fields.
const (
	FieldEmail          = "email"
	FieldHashedPassword = "hashed_password"
	FieldSessionID      = "session_id"
	FieldResetToken     = "reset_token"
)

// UserUpdate is a partial update keyed by field name.
// A nil value clears a nullable field (session_id, reset_token).
type UserUpdate map[string]any

// FieldValue is a validated column assignment.
type FieldValue struct {
	Field string
	Value any
}

// Normalize validates every field of the update and returns the assignments
// in a stable order. Values are converted to string (email), []byte
// (hashed_password) or *string (session_id, reset_token). Nothing is returned
// unless every field is valid.
func (u UserUpdate) Normalize() ([]FieldValue, error) {
	if len(u) == 0 {
		return nil, oops.Code(CodeInvalidField).Wrapf(ErrInvalidField, "update has no fields")
	}

	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FieldValue, 0, len(names))
	for _, name := range names {
		v, err := normalizeField(name, u[name])
		if err != nil {
			return nil, err
		}
		out = append(out, FieldValue{Field: name, Value: v})
	}
	return out, nil
}

func normalizeField(name string, value any) (any, error) {
	invalid := func(reason string) error {
		return oops.Code(CodeInvalidField).
			With("field", name).
			Wrapf(ErrInvalidField, "%s", reason)
	}

	switch name {
	case FieldEmail:
		s, ok := value.(string)
		if !ok || s == "" {
			return nil, invalid("email must be a non-empty string")
		}
		return s, nil
	case FieldHashedPassword:
		switch v := value.(type) {
		case []byte:
			if len(v) == 0 {
				return nil, invalid("hashed_password cannot be empty")
			}
			return v, nil
		case string:
			if v == "" {
				return nil, invalid("hashed_password cannot be empty")
			}
			return []byte(v), nil
		default:
			return nil, invalid("hashed_password must be bytes")
		}
	case FieldSessionID, FieldResetToken:
		switch v := value.(type) {
		case nil:
			return (*string)(nil), nil
		case *string:
			return v, nil
		case string:
			return &v, nil
		default:
			return nil, invalid(name + " must be a string or nil")
		}
	default:
		return nil, invalid("unknown field " + name)
	}
}

// Transactor runs a function inside a single store transaction. Store calls
// made with the context passed to fn join the transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CredentialStore manages user persistence.
//
// Email lookups are case-insensitive. Failures that are neither a lookup
// outcome nor a constraint violation wrap ErrStoreUnavailable.
type CredentialStore interface {
	Transactor

	// AddUser stores a new user. Returns ErrDuplicateEmail if the email exists.
	AddUser(ctx context.Context, email string, hashedPassword []byte) (*User, error)

	// FindByEmail returns ErrNotFound if no user has the email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindUsersByEmail returns every user matching the email, possibly none.
	FindUsersByEmail(ctx context.Context, email string) ([]*User, error)

	// FindBySessionID returns ErrNotFound if no user holds the session.
	FindBySessionID(ctx context.Context, sessionID string) (*User, error)

	// FindByResetToken returns ErrNotFound if no user holds the token.
	FindByResetToken(ctx context.Context, token string) (*User, error)

	// FindByID returns ErrNotFound if the id is absent.
	FindByID(ctx context.Context, id int64) (*User, error)

	// UpdateUser applies fields atomically. Returns ErrInvalidField before
	// writing anything if a field is unknown or mistyped, and ErrNotFound if
	// the id is absent.
	UpdateUser(ctx context.Context, id int64, fields UserUpdate) error
}
