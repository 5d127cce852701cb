// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Sentinel failures surfaced by the credential store and the service.
// Callers match them with errors.Is; the wrapping oops error carries the code.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidResetToken  = errors.New("invalid reset token")
	ErrInvalidField       = errors.New("invalid field")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrNilDependency      = errors.New("missing dependency")
	ErrTokenGeneration    = errors.New("token generation failed")
	ErrPasswordHashFailed = errors.New("password hashing failed")
)

// Error codes attached to oops errors.
const (
	CodeDuplicateEmail    = "AUTH_DUPLICATE_EMAIL"
	CodeUserNotFound      = "AUTH_USER_NOT_FOUND"
	CodeInvalidResetToken = "AUTH_INVALID_RESET_TOKEN"
	CodeInvalidField      = "STORE_INVALID_FIELD"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeNotFound          = "USER_NOT_FOUND"
	CodeTokenFailed       = "AUTH_TOKEN_FAILED"
	CodeHashFailed        = "AUTH_HASH_FAILED"
)

// IsStoreUnavailable reports whether err is a transient persistence failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
