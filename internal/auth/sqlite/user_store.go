// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements auth.CredentialStore on an embedded SQLite
// database. It is intended for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/gatekeeper/internal/auth"
)

const emailIndex = "users_email_lower_idx"

const userColumns = `id, email, hashed_password, session_id, reset_token`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// UserStore implements auth.CredentialStore using SQLite.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a UserStore on an open database. The schema must
// already be migrated.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// InTransaction runs fn inside a transaction stored in context.
// Nested calls join the active transaction.
func (s *UserStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin transaction")
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback() //nolint:errcheck // fn error or panic takes precedence
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return classify(err, "commit transaction")
	}
	return nil
}

func (s *UserStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// AddUser stores a new user and returns it with its assigned id.
func (s *UserStore) AddUser(ctx context.Context, email string, hashedPassword []byte) (*auth.User, error) {
	var id int64
	err := s.q(ctx).QueryRowContext(ctx,
		`INSERT INTO users (email, hashed_password) VALUES (?, ?) RETURNING id`,
		email, hashedPassword,
	).Scan(&id)
	if err != nil {
		if isDuplicateEmail(err) {
			return nil, oops.Code(auth.CodeDuplicateEmail).
				With("email", email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return nil, classify(err, "insert user", "email", email)
	}

	return &auth.User{
		ID:             id,
		Email:          email,
		HashedPassword: hashedPassword,
	}, nil
}

// FindByEmail retrieves a user by email (case-insensitive).
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, "email", email,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(?) ORDER BY id LIMIT 1`,
		email)
}

// FindUsersByEmail retrieves every user whose email matches (case-insensitive).
func (s *UserStore) FindUsersByEmail(ctx context.Context, email string) ([]*auth.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(?) ORDER BY id`,
		email)
	if err != nil {
		return nil, classify(err, "search users by email", "email", email)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // read-only cursor

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, classify(err, "scan user row", "email", email)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate users", "email", email)
	}
	return users, nil
}

// FindBySessionID retrieves the user holding the session id.
func (s *UserStore) FindBySessionID(ctx context.Context, sessionID string) (*auth.User, error) {
	return s.findOne(ctx, "session_id", sessionID,
		`SELECT `+userColumns+` FROM users WHERE session_id = ? ORDER BY id LIMIT 1`,
		sessionID)
}

// FindByResetToken retrieves the user holding the reset token.
func (s *UserStore) FindByResetToken(ctx context.Context, token string) (*auth.User, error) {
	return s.findOne(ctx, "reset_token", token,
		`SELECT `+userColumns+` FROM users WHERE reset_token = ? ORDER BY id LIMIT 1`,
		token)
}

// FindByID retrieves a user by id.
func (s *UserStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.findOne(ctx, "id", id,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id)
}

// UpdateUser applies a validated partial update in a single statement.
func (s *UserStore) UpdateUser(ctx context.Context, id int64, fields auth.UserUpdate) error {
	values, err := fields.Normalize()
	if err != nil {
		return oops.With("user_id", id).Wrap(err)
	}

	sets := make([]string, 0, len(values))
	args := make([]any, 0, len(values)+1)
	for _, fv := range values {
		sets = append(sets, fv.Field+" = ?")
		args = append(args, fv.Value)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = ?`, strings.Join(sets, ", "))
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateEmail(err) {
			return oops.Code(auth.CodeDuplicateEmail).
				With("user_id", id).
				Wrap(auth.ErrDuplicateEmail)
		}
		return classify(err, "update user", "user_id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "update user", "user_id", id)
	}
	if n == 0 {
		return oops.Code(auth.CodeNotFound).
			With("user_id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, key string, value any, query string, args ...any) (*auth.User, error) {
	user, err := scanUser(s.q(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err, "find user by "+key, key, value)
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*auth.User, error) {
	var (
		u                     auth.User
		sessionID, resetToken sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &sessionID, &resetToken); err != nil {
		return nil, err //nolint:wrapcheck // callers classify
	}
	if sessionID.Valid {
		u.SessionID = &sessionID.String
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	return &u, nil
}

func isDuplicateEmail(err error) bool {
	var sqlErr *sqlitedrv.Error
	return errors.As(err, &sqlErr) &&
		(sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT) &&
		strings.Contains(sqlErr.Error(), emailIndex)
}

// classify wraps a driver error. Engine errors about locking, I/O or
// capacity mean the store is unavailable, as does anything that never
// reached the engine (closed handle, cancelled context). Other engine
// errors are query failures.
func classify(err error, operation string, kv ...any) error {
	builder := oops.With("operation", operation).With(kv...)

	var sqlErr *sqlitedrv.Error
	if errors.As(err, &sqlErr) && !unavailableCode(sqlErr.Code()) {
		return builder.Code("STORE_QUERY_FAILED").
			With("sqlite_code", sqlErr.Code()).
			Wrap(err)
	}
	return builder.Code(auth.CodeStoreUnavailable).Wrap(errors.Join(auth.ErrStoreUnavailable, err))
}

func unavailableCode(code int) bool {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_FULL, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOMEM,
		sqlite3.SQLITE_READONLY:
		return true
	}
	return false
}

// Compile-time check that UserStore implements auth.CredentialStore.
var _ auth.CredentialStore = (*UserStore)(nil)
