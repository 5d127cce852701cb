// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Service orchestrates registration, login, the session lifecycle and the
// password reset flow.
type Service struct {
	store  CredentialStore
	hasher PasswordHasher
	tokens TokenGenerator
	logger *slog.Logger

	// decoyHash is verified when the email is unknown.
	decoyHash []byte
}

// NewService creates a Service that logs through slog.Default.
func NewService(store CredentialStore, hasher PasswordHasher, tokens TokenGenerator) (*Service, error) {
	return NewServiceWithLogger(store, hasher, tokens, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(store CredentialStore, hasher PasswordHasher, tokens TokenGenerator, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Wrapf(ErrNilDependency, "credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Wrapf(ErrNilDependency, "password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Wrapf(ErrNilDependency, "token generator is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Wrapf(ErrNilDependency, "logger is required")
	}
	decoy, err := NewDecoyHash(hasher)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		decoyHash: decoy,
	}, nil
}

// Register creates a user with a hashed password. Empty email or password
// fails with ErrInvalidField. Returns ErrDuplicateEmail if the email is
// already registered.
func (s *Service) Register(ctx context.Context, email, password string) (user *User, err error) {
	defer func() { RecordOperation(OpRegister, resultFor(err)) }()

	if email == "" {
		return nil, oops.Code(CodeInvalidField).
			With("field", FieldEmail).
			Wrapf(ErrInvalidField, "email cannot be empty")
	}
	if pwErr := requirePassword(password); pwErr != nil {
		return nil, pwErr
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code(CodeHashFailed).
			With("operation", "hash password").
			Wrap(errors.Join(ErrPasswordHashFailed, err))
	}

	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		_, findErr := s.store.FindByEmail(ctx, email)
		if findErr == nil {
			return oops.Code(CodeDuplicateEmail).
				With("email", email).
				Wrap(ErrDuplicateEmail)
		}
		if !errors.Is(findErr, ErrNotFound) {
			return oops.With("operation", "find user by email").Wrap(findErr)
		}

		created, addErr := s.store.AddUser(ctx, email, hash)
		if addErr != nil {
			return oops.With("operation", "add user").With("email", email).Wrap(addErr)
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// ValidLogin reports whether the password is correct for the email.
// An unknown email or a wrong password yields false with a nil error; the
// error is only set when the store is unavailable.
func (s *Service) ValidLogin(ctx context.Context, email, password string) (valid bool, err error) {
	defer func() {
		switch {
		case err != nil:
			RecordOperation(OpValidLogin, resultFor(err))
		case valid:
			RecordOperation(OpValidLogin, ResultSuccess)
		default:
			RecordOperation(OpValidLogin, ResultRejected)
		}
	}()

	if email == "" {
		return false, nil
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Verify(password, s.decoyHash)
			return false, nil
		}
		if IsStoreUnavailable(err) {
			return false, oops.With("operation", "find user by email").Wrap(err)
		}
		errutil.LogErrorContext(ctx, s.logger, "login lookup failed", err)
		return false, nil
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		return false, nil
	}

	if s.hasher.NeedsUpgrade(user.HashedPassword) {
		s.upgradeHash(ctx, user, password)
	}
	return true, nil
}

// upgradeHash re-hashes a verified password. Failures are logged; the login
// itself has already succeeded.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdateUser(ctx, user.ID, UserUpdate{FieldHashedPassword: hash})
	}
	if err != nil {
		RecordOperation(OpPasswordUpgrade, resultFor(err))
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID,
			"error", err)
		return
	}
	RecordOperation(OpPasswordUpgrade, ResultSuccess)
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID)
}

// CreateSession issues a new session id for the user, replacing any previous
// session. Returns ErrUserNotFound if the email is unknown.
func (s *Service) CreateSession(ctx context.Context, email string) (sessionID string, err error) {
	defer func() { RecordOperation(OpCreateSession, resultFor(err)) }()

	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		user, findErr := s.findUserByEmail(ctx, email)
		if findErr != nil {
			return findErr
		}

		token, tokenErr := s.newToken()
		if tokenErr != nil {
			return tokenErr
		}

		if updErr := s.store.UpdateUser(ctx, user.ID, UserUpdate{FieldSessionID: token}); updErr != nil {
			return oops.With("operation", "store session id").With("user_id", user.ID).Wrap(updErr)
		}
		sessionID = token
		return nil
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// GetUserFromSessionID returns the user holding the session, or nil if the
// session id is empty or unknown. The error is only set when the store is
// unavailable.
func (s *Service) GetUserFromSessionID(ctx context.Context, sessionID string) (user *User, err error) {
	defer func() {
		switch {
		case err != nil:
			RecordOperation(OpResolveSession, resultFor(err))
		case user != nil:
			RecordOperation(OpResolveSession, ResultSuccess)
		default:
			RecordOperation(OpResolveSession, ResultRejected)
		}
	}()

	if sessionID == "" {
		return nil, nil
	}

	user, err = s.store.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if IsStoreUnavailable(err) {
			return nil, oops.With("operation", "find user by session id").Wrap(err)
		}
		errutil.LogErrorContext(ctx, s.logger, "session lookup failed", err)
		return nil, nil
	}
	return user, nil
}

// DestroySession clears the user's session. An unknown user is not an error.
func (s *Service) DestroySession(ctx context.Context, userID int64) (err error) {
	defer func() { RecordOperation(OpDestroySession, resultFor(err)) }()

	err = s.store.UpdateUser(ctx, userID, UserUpdate{FieldSessionID: nil})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.With("operation", "clear session id").With("user_id", userID).Wrap(err)
	}
	return nil
}

// GetResetPasswordToken issues a reset token for the user, replacing any
// previous one. Returns ErrUserNotFound if the email is unknown.
func (s *Service) GetResetPasswordToken(ctx context.Context, email string) (resetToken string, err error) {
	defer func() { RecordOperation(OpResetToken, resultFor(err)) }()

	err = s.store.InTransaction(ctx, func(ctx context.Context) error {
		user, findErr := s.findUserByEmail(ctx, email)
		if findErr != nil {
			return findErr
		}

		token, tokenErr := s.newToken()
		if tokenErr != nil {
			return tokenErr
		}

		if updErr := s.store.UpdateUser(ctx, user.ID, UserUpdate{FieldResetToken: token}); updErr != nil {
			return oops.With("operation", "store reset token").With("user_id", user.ID).Wrap(updErr)
		}
		resetToken = token
		return nil
	})
	if err != nil {
		return "", err
	}
	return resetToken, nil
}

// UpdatePassword replaces the password of the user holding resetToken and
// consumes the token in the same update. Returns ErrInvalidResetToken if the
// token is empty or unknown, and ErrInvalidField for an empty password.
func (s *Service) UpdatePassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { RecordOperation(OpUpdatePassword, resultFor(err)) }()

	if resetToken == "" {
		return oops.Code(CodeInvalidResetToken).Wrap(ErrInvalidResetToken)
	}
	if pwErr := requirePassword(newPassword); pwErr != nil {
		return pwErr
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code(CodeHashFailed).
			With("operation", "hash password").
			Wrap(errors.Join(ErrPasswordHashFailed, err))
	}

	return s.store.InTransaction(ctx, func(ctx context.Context) error {
		user, findErr := s.store.FindByResetToken(ctx, resetToken)
		if findErr != nil {
			if errors.Is(findErr, ErrNotFound) {
				return oops.Code(CodeInvalidResetToken).Wrap(ErrInvalidResetToken)
			}
			return oops.With("operation", "find user by reset token").Wrap(findErr)
		}

		update := UserUpdate{
			FieldHashedPassword: hash,
			FieldResetToken:     nil,
		}
		if updErr := s.store.UpdateUser(ctx, user.ID, update); updErr != nil {
			return oops.With("operation", "replace password").With("user_id", user.ID).Wrap(updErr)
		}

		s.logger.InfoContext(ctx, "password updated", "user_id", user.ID)
		return nil
	})
}

// requirePassword rejects the empty password. Basic credentials with an
// empty password never authenticate, so no account may hold one.
func requirePassword(password string) error {
	if password == "" {
		return oops.Code(CodeInvalidField).
			With("field", "password").
			Wrapf(ErrInvalidField, "password cannot be empty")
	}
	return nil
}

func (s *Service) findUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).
				With("email", email).
				Wrap(ErrUserNotFound)
		}
		return nil, oops.With("operation", "find user by email").Wrap(err)
	}
	return user, nil
}

func (s *Service) newToken() (string, error) {
	token, err := s.tokens.NewToken()
	if err != nil {
		return "", oops.Code(CodeTokenFailed).
			With("operation", "generate token").
			Wrap(errors.Join(ErrTokenGeneration, err))
	}
	return token, nil
}
