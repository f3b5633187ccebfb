// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/skycast/skycast/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_WEAK_PASSWORD").Errorf("weak")
	errutil.AssertErrorCode(t, err, "AUTH_WEAK_PASSWORD")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("user_id", "01J0000000000000000000000").Errorf("test error")
	errutil.AssertErrorContext(t, err, "user_id", "01J0000000000000000000000")
}

func TestAssertErrorCode_ThroughWrapping(t *testing.T) {
	inner := oops.Code("SESSION_EXPIRED").Errorf("token expired")
	err := oops.With("operation", "authenticate").Wrap(inner)
	errutil.AssertErrorCode(t, err, "SESSION_EXPIRED")
	errutil.AssertErrorContext(t, err, "operation", "authenticate")
}
