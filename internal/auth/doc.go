// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the authentication core for Gatekeeper.
//
// # Domain Types
//
// A User is the only persisted entity. Sessions and password resets are not
// separate records: a session exists while User.SessionID is set, and a reset
// is pending while User.ResetToken is set. Both tokens are single-valued, so
// issuing a new one replaces the previous one.
//
// # Collaborators
//
//   - CredentialStore - persistence of users (see the postgres and sqlite subpackages)
//   - PasswordHasher - Argon2idHasher or BcryptHasher
//   - TokenGenerator - UUIDGenerator
//
// # Services
//
// Service orchestrates registration, login validation, the session lifecycle
// and the password reset flow. It is created with NewService, which validates
// its dependencies, and is safe for concurrent use. Read-then-write sequences
// run inside CredentialStore.InTransaction.
package auth
