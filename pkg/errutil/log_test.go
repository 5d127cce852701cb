// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

func TestLogErrorContext(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    any
		wantContext map[string]any
		wantError   string
	}{
		{
			name:      "plain error",
			err:       errors.New("connection refused"),
			wantError: "connection refused",
		},
		{
			name:        "oops error with code and context",
			err:         oops.Code("AUTH_DUPLICATE_EMAIL").With("email", "a@x.com").Errorf("email taken"),
			wantCode:    "AUTH_DUPLICATE_EMAIL",
			wantContext: map[string]any{"email": "a@x.com"},
			wantError:   "email taken",
		},
		{
			name: "wrapped oops error keeps inner code and outer context",
			err: oops.With("operation", "find user").
				Wrap(oops.Code("STORE_UNAVAILABLE").Errorf("pool closed")),
			wantCode:    "STORE_UNAVAILABLE",
			wantContext: map[string]any{"operation": "find user"},
			wantError:   "pool closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			errutil.LogErrorContext(context.Background(), logger, "login lookup failed", tt.err)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "ERROR", entry["level"])
			assert.Equal(t, "login lookup failed", entry["msg"])
			assert.Contains(t, entry["error"], tt.wantError)
			assert.Equal(t, tt.wantCode, entry["code"])
			if tt.wantContext == nil {
				assert.NotContains(t, entry, "context")
				return
			}
			assert.Equal(t, tt.wantContext, entry["context"])
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, "MY_CODE", errutil.Code(oops.Code("MY_CODE").Errorf("boom")))
	assert.Equal(t, "MY_CODE", errutil.Code(oops.With("k", "v").Wrap(oops.Code("MY_CODE").Errorf("boom"))))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(nil))
}
