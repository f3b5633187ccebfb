// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package mail delivers account verification and password reset tokens.
//
// Delivery is outside the auth core: the auth service returns tokens and
// the HTTP layer hands them to a Notifier. Failures are logged by the
// caller and never change the outcome of the request that produced the
// token.
package mail

import (
	"context"
	"log/slog"
)

// Error codes.
const (
	CodeConfigInvalid = "MAIL_CONFIG_INVALID"
	CodeRenderFailed  = "MAIL_RENDER_FAILED"
	CodeSendFailed    = "MAIL_SEND_FAILED"
)

// Provider names accepted by New.
const (
	ProviderLog    = "log"
	ProviderResend = "resend"
)

// Notifier sends account lifecycle mail.
type Notifier interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

// LogNotifier writes deliveries to the log instead of sending them.
// Tokens are logged in full; use it only in development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendVerification logs the verification token for to.
func (n *LogNotifier) SendVerification(ctx context.Context, to, token string) error {
	n.logger.InfoContext(ctx, "verification mail", "to", to, "token", token)
	return nil
}

// SendPasswordReset logs the reset token for to.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, to, token string) error {
	n.logger.InfoContext(ctx, "password reset mail", "to", to, "token", token)
	return nil
}
