// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// emailIndex is the unique index enforcing case-insensitive email uniqueness.
const emailIndex = "users_email_lower_idx"

const userColumns = `id, email, hashed_password, session_id, reset_token`

// querier abstracts query execution for both the pool and a pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// poolIface is satisfied by *pgxpool.Pool and pgxmock pools.
type poolIface interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// UserStore implements auth.CredentialStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a UserStore backed by the given pool.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled back.
// Calls nested inside an active transaction join it.
func (s *UserStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err, "begin transaction")
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx) //nolint:errcheck // fn error or panic takes precedence
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		committed = true // a failed commit has already ended the transaction
		return classify(err, "commit transaction")
	}
	committed = true
	return nil
}

// q returns the active transaction if there is one, otherwise the pool.
func (s *UserStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// lock returns the row-lock clause for reads inside a transaction.
func lock(ctx context.Context) string {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return " FOR UPDATE"
	}
	return ""
}

// AddUser stores a new user and returns it with its assigned id.
func (s *UserStore) AddUser(ctx context.Context, email string, hashedPassword []byte) (*auth.User, error) {
	var id int64
	err := s.q(ctx).QueryRow(ctx,
		`INSERT INTO users (email, hashed_password) VALUES ($1, $2) RETURNING id`,
		email, hashedPassword,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailIndex {
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
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) ORDER BY id LIMIT 1`+lock(ctx),
		email)
}

// FindUsersByEmail retrieves every user whose email matches (case-insensitive).
func (s *UserStore) FindUsersByEmail(ctx context.Context, email string) ([]*auth.User, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) ORDER BY id`,
		email)
	if err != nil {
		return nil, classify(err, "search users by email", "email", email)
	}
	defer rows.Close()

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
		`SELECT `+userColumns+` FROM users WHERE session_id = $1 ORDER BY id LIMIT 1`+lock(ctx),
		sessionID)
}

// FindByResetToken retrieves the user holding the reset token.
func (s *UserStore) FindByResetToken(ctx context.Context, token string) (*auth.User, error) {
	return s.findOne(ctx, "reset_token", token,
		`SELECT `+userColumns+` FROM users WHERE reset_token = $1 ORDER BY id LIMIT 1`+lock(ctx),
		token)
}

// FindByID retrieves a user by id.
func (s *UserStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.findOne(ctx, "id", id,
		`SELECT `+userColumns+` FROM users WHERE id = $1`+lock(ctx),
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
	for i, fv := range values {
		// field names come from the Normalize allowlist
		sets = append(sets, fmt.Sprintf("%s = $%d", fv.Field, i+1))
		args = append(args, fv.Value)
	}
	args = append(args, id)

	sql := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	tag, err := s.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailIndex {
			return oops.Code(auth.CodeDuplicateEmail).
				With("user_id", id).
				Wrap(auth.ErrDuplicateEmail)
		}
		return classify(err, "update user", "user_id", id)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeNotFound).
			With("user_id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, key string, value any, sql string, args ...any) (*auth.User, error) {
	user, err := scanUser(s.q(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err, "find user by "+key, key, value)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.SessionID, &u.ResetToken); err != nil {
		return nil, err //nolint:wrapcheck // callers classify
	}
	return &u, nil
}

// classify wraps a driver error. Server-reported errors outside the
// connection, resource and operator classes are query failures; everything
// else (network, pool, context) means the store is unavailable.
func classify(err error, operation string, kv ...any) error {
	builder := oops.With("operation", operation).With(kv...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) &&
		!pgerrcode.IsConnectionException(pgErr.Code) &&
		!pgerrcode.IsInsufficientResources(pgErr.Code) &&
		!pgerrcode.IsOperatorIntervention(pgErr.Code) {
		return builder.Code("STORE_QUERY_FAILED").
			With("sqlstate", pgErr.Code).
			Wrap(err)
	}
	return builder.Code(auth.CodeStoreUnavailable).Wrap(errors.Join(auth.ErrStoreUnavailable, err))
}

// Compile-time check that UserStore implements auth.CredentialStore.
var _ auth.CredentialStore = (*UserStore)(nil)
