// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api exposes the authentication service over HTTP.
//
// Inputs are form-encoded, outputs JSON. Errors render as {"message": "..."}
// with a status derived from the error's sentinel; store outages are 503 and
// anything unexpected is a generic 500.
package api
