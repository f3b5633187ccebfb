// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package auth implements Skycast account authentication.
//
// # Primitives
//
//   - PasswordHasher / Argon2idHasher - salted, versioned credential hashes
//   - GenerateToken / HashToken - single-use verification and reset tokens
//   - IsValidEmail / IsStrongPassword - input validation
//   - SessionIssuer - signed, expiring session tokens (JWT, HS256)
//
// Session claims are only obtainable from SessionIssuer.Verify; a *Claims
// value is always signature-checked and unexpired.
//
// # Service
//
// Service coordinates registration, login, email verification and password
// reset on top of a UserRepository. Tokens are stored as SHA-256 digests,
// never in plaintext. Login checks the password before disclosing lockout
// or verification state, so an attacker without the password learns only
// "invalid credentials".
package auth
