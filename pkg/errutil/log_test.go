// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

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

	"github.com/skycast/skycast/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("USER_NOT_FOUND").
		With("email", "a@x.com").
		Errorf("user missing")

	errutil.LogError(logger, "lookup failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "lookup failed", logEntry["msg"])
	assert.Equal(t, "USER_NOT_FOUND", logEntry["code"])
	require.Contains(t, logEntry, "context")
	assert.Equal(t, "a@x.com", logEntry["context"].(map[string]any)["email"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogErrorContext_UsesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	errutil.LogErrorContext(context.Background(), logger, slog.LevelWarn, "login rejected", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "WARN", logEntry["level"])
	assert.Equal(t, "AUTH_INVALID_CREDENTIALS", logEntry["code"])
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"coded", oops.Code("SESSION_EXPIRED").Errorf("expired"), "SESSION_EXPIRED"},
		{"uncoded oops", oops.With("k", "v").Errorf("x"), ""},
		{"wrapped plain", oops.Code("WEATHER_UPSTREAM_FAILED").Wrap(errors.New("dial")), "WEATHER_UPSTREAM_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := oops.Code("AUTH_EMAIL_TAKEN").Errorf("taken")
	assert.True(t, errutil.HasCode(err, "AUTH_EMAIL_TAKEN"))
	assert.False(t, errutil.HasCode(err, "AUTH_WEAK_PASSWORD"))
	assert.False(t, errutil.HasCode(nil, ""))
}
