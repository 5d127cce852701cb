// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package access decides whether an inbound HTTP request may proceed.
//
// A Gate combines three pieces:
//   - ExcludedPaths: public paths that skip authentication entirely
//   - an Authenticator strategy that resolves the caller (BasicAuth or SessionAuth)
//   - a Decision (allow, unauthorized, forbidden, unavailable) for the boundary to render
//
// The credential helpers (ExtractAuthorizationHeader, ExtractBase64Credentials,
// DecodeBase64, SplitCredentials) never fail loudly: malformed input yields
// ok=false and the request is treated as unauthenticated.
package access
