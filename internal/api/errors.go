// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// respondError aborts the request with a {"message": ...} body.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// statusFor maps a service error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusBadRequest, "email already registered"
	case errors.Is(err, auth.ErrInvalidField):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, auth.ErrInvalidResetToken):
		return http.StatusForbidden, "forbidden"
	case auth.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// fail renders err. Server-side failures are logged with their code.
func (h *handlers) fail(c *gin.Context, msg string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request.Context(), h.logger, msg, err)
	}
	_ = c.Error(err) //nolint:errcheck // attaches to context for the access log
	respondError(c, status, message)
}
