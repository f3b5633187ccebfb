// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import "errors"

// Storage sentinels. Repository implementations wrap these so callers can
// match with errors.Is regardless of backend.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when an insert violates the unique email index.
	ErrEmailTaken = errors.New("email already registered")

	// ErrTokenCollision is returned when an insert or update violates a
	// unique token index.
	ErrTokenCollision = errors.New("token collision")
)

// Error codes surfaced by this package. The HTTP layer maps them to statuses.
const (
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodePasswordEncoding   = "AUTH_PASSWORD_ENCODING"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnverified         = "AUTH_UNVERIFIED"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeConfigInvalid      = "AUTH_CONFIG_INVALID"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeInvalidName        = "AUTH_INVALID_NAME"

	CodeSessionMissing          = "SESSION_MISSING"
	CodeSessionExpired          = "SESSION_EXPIRED"
	CodeSessionSignatureInvalid = "SESSION_SIGNATURE_INVALID"
	CodeSessionMalformed        = "SESSION_MALFORMED"

	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidPreferences = "USER_INVALID_PREFERENCES"
)
