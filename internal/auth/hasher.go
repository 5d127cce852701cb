// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

const argon2Prefix = "$argon2id$"

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password. Two calls with the same
	// password never return the same bytes.
	Hash(password string) ([]byte, error)

	// Verify reports whether the password matches the hash. A malformed hash
	// never matches.
	Verify(password string, hash []byte) bool

	// NeedsUpgrade returns true if a verified hash should be re-hashed with
	// the current algorithm or parameters.
	NeedsUpgrade(hash []byte) bool
}

// DecoyPassword is the plaintext behind the hash returned by NewDecoyHash.
//
//nolint:gosec // G101: not a credential of any account.
const DecoyPassword = "gatekeeper decoy password"

// NewDecoyHash hashes DecoyPassword with h. Callers verify the presented
// password against it when a lookup finds no account, so the miss costs one
// verification of the active algorithm, the same as a wrong password.
func NewDecoyHash(h PasswordHasher) ([]byte, error) {
	hash, err := h.Hash(DecoyPassword)
	if err != nil {
		return nil, oops.Code(CodeHashFailed).
			With("operation", "hash decoy password").
			Wrap(errors.Join(ErrPasswordHashFailed, err))
	}
	return hash, nil
}

// NewPasswordHasher returns the hasher for the named algorithm
// ("argon2id" or "bcrypt").
func NewPasswordHasher(algorithm string, bcryptCost int) (PasswordHasher, error) {
	switch algorithm {
	case "", "argon2id":
		return NewArgon2idHasher(), nil
	case "bcrypt":
		h, err := NewBcryptHasher(bcryptCost)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASHER").
			With("algorithm", algorithm).
			Errorf("unknown password hasher %q", algorithm)
	}
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// bcrypt hashes so that accounts created with BcryptHasher keep working and
// are upgraded on their next login.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) ([]byte, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return []byte(encoded), nil
}

// Verify checks if the password matches an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password string, hash []byte) bool {
	if isBcryptHash(hash) {
		return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	}

	params, salt, expected, ok := parseArgon2id(string(hash))
	if !ok {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash []byte) bool {
	return !bytes.HasPrefix(hash, []byte(argon2Prefix))
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseArgon2id(encoded string) (argon2Params, []byte, []byte, bool) {
	var p argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return p, nil, nil, false
	}
	// threads must fit in uint8; zero values make argon2 panic
	if threads == 0 || threads > 255 || time == 0 || memory == 0 {
		return p, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, false
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1<<10 {
		return p, nil, nil, false
	}

	p.memory = memory
	p.time = time
	p.threads = uint8(threads)
	return p, salt, key, true
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_INVALID_BCRYPT_COST").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return nil, oops.Code(CodeHashFailed).With("algorithm", "bcrypt").Wrap(err)
	}
	return hash, nil
}

// Verify checks if the password matches the bcrypt hash.
func (h *BcryptHasher) Verify(password string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// NeedsUpgrade returns true if the hash was produced with a lower cost than
// the configured one. Unreadable hashes are left alone.
func (h *BcryptHasher) NeedsUpgrade(hash []byte) bool {
	cost, err := bcrypt.Cost(hash)
	if err != nil {
		return false
	}
	return cost < h.cost
}

func isBcryptHash(hash []byte) bool {
	return bytes.HasPrefix(hash, []byte("$2a$")) ||
		bytes.HasPrefix(hash, []byte("$2b$")) ||
		bytes.HasPrefix(hash, []byte("$2y$"))
}
