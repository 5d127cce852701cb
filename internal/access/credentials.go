// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

const basicPrefix = "Basic "

// ExtractAuthorizationHeader returns the raw Authorization header.
// ok is false when the request is nil or carries no such header.
func ExtractAuthorizationHeader(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	values := r.Header.Values("Authorization")
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// ExtractBase64Credentials returns the token of a "Basic <token>" header,
// up to the next space.
func ExtractBase64Credentials(header string) (string, bool) {
	rest, ok := strings.CutPrefix(header, basicPrefix)
	if !ok {
		return "", false
	}
	token, _, _ := strings.Cut(rest, " ")
	if token == "" {
		return "", false
	}
	return token, true
}

// DecodeBase64 decodes standard Base64 into UTF-8 text.
func DecodeBase64(token string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// SplitCredentials splits "email:password" on the last colon, so emails may
// contain colons but passwords may not.
func SplitCredentials(decoded string) (email, password string, ok bool) {
	i := strings.LastIndexByte(decoded, ':')
	if i < 0 {
		return "", "", false
	}
	return decoded[:i], decoded[i+1:], true
}

// SessionCookie returns the value of the named cookie.
func SessionCookie(r *http.Request, name string) (string, bool) {
	if r == nil || name == "" {
		return "", false
	}
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}
