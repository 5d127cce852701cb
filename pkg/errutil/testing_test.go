// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

var errSentinel = errors.New("sentinel")

func TestAssertErrorCode_WrappedCode(t *testing.T) {
	inner := oops.Code("MY_CODE").Errorf("test error")
	errutil.AssertErrorCode(t, oops.With("operation", "x").Wrap(inner), "MY_CODE")
}

func TestAssertError_CodeAndSentinel(t *testing.T) {
	err := oops.Code("MY_CODE").With("email", "a@b.c").Wrap(errSentinel)
	errutil.AssertError(t, err, "MY_CODE", errSentinel)
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("user_id", "123").Errorf("test error")
	errutil.AssertErrorContext(t, err, "user_id", "123")
}
