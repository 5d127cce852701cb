// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/gatekeeper/internal/access"
	"github.com/holomush/gatekeeper/internal/auth"
)

// requireForm returns the named form values, or aborts with 400 naming the
// first missing one.
func requireForm(c *gin.Context, names ...string) ([]string, bool) {
	values := make([]string, len(names))
	for i, name := range names {
		v, ok := c.GetPostForm(name)
		if !ok {
			respondError(c, http.StatusBadRequest, name+" missing")
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func (h *handlers) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Bienvenue"})
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (h *handlers) register(c *gin.Context) {
	form, ok := requireForm(c, "email", "password")
	if !ok {
		return
	}
	email, password := form[0], form[1]

	user, err := h.svc.Register(c.Request.Context(), email, password)
	if err != nil {
		h.fail(c, "register failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": user.Email, "message": "user created"})
}

func (h *handlers) login(c *gin.Context) {
	form, ok := requireForm(c, "email", "password")
	if !ok {
		return
	}
	email, password := form[0], form[1]
	ctx := c.Request.Context()

	valid, err := h.svc.ValidLogin(ctx, email, password)
	if err != nil {
		h.fail(c, "login failed", err)
		return
	}
	if !valid {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID, err := h.svc.CreateSession(ctx, email)
	if err != nil {
		h.fail(c, "create session failed", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie, sessionID, 0, "/", "", h.secure, true)
	c.JSON(http.StatusOK, gin.H{"email": email, "message": "logged in"})
}

// sessionUser resolves the session cookie. It renders the response and
// returns false when the request cannot continue.
func (h *handlers) sessionUser(c *gin.Context) (*auth.User, bool) {
	user, err := h.sessions.CurrentUser(c.Request)
	if err != nil {
		h.fail(c, "session lookup failed", err)
		return nil, false
	}
	if user == nil {
		respondError(c, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return user, true
}

func (h *handlers) logout(c *gin.Context) {
	user, ok := h.sessionUser(c)
	if !ok {
		return
	}
	if err := h.svc.DestroySession(c.Request.Context(), user.ID); err != nil {
		h.fail(c, "destroy session failed", err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *handlers) profile(c *gin.Context) {
	user, ok := h.sessionUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": user.Email})
}

func (h *handlers) resetToken(c *gin.Context) {
	form, ok := requireForm(c, "email")
	if !ok {
		return
	}
	email := form[0]

	token, err := h.svc.GetResetPasswordToken(c.Request.Context(), email)
	if err != nil {
		h.fail(c, "reset token failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "reset_token": token})
}

func (h *handlers) updatePassword(c *gin.Context) {
	form, ok := requireForm(c, "email", "reset_token", "new_password")
	if !ok {
		return
	}
	email, token, password := form[0], form[1], form[2]

	if err := h.svc.UpdatePassword(c.Request.Context(), token, password); err != nil {
		h.fail(c, "update password failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "message": "Password updated"})
}

func (h *handlers) me(c *gin.Context) {
	user, ok := access.UserFromContext(c.Request.Context())
	if !ok {
		respondError(c, http.StatusNotFound, "not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "email": user.Email})
}

func (h *handlers) sessionLogout(c *gin.Context) {
	destroyed, err := h.sessions.DestroySession(c.Request)
	if err != nil {
		h.fail(c, "destroy session failed", err)
		return
	}
	if !destroyed {
		respondError(c, http.StatusNotFound, "not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
