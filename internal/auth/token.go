// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// TokenGenerator produces opaque, unguessable identifiers used as session ids
// and password reset tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// UUIDGenerator issues random (version 4) UUIDs, 122 bits of entropy each.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUIDGenerator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewToken returns a fresh random UUID in canonical string form.
func (g *UUIDGenerator) NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", oops.Code(CodeTokenFailed).Wrap(err)
	}
	return id.String(), nil
}
