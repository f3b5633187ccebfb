// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/auth"
)

// Unique index names from the users migration.
const (
	emailIndex        = "users_email_key"
	verificationIndex = "users_verification_token_key"
	resetIndex        = "users_reset_token_key"
)

const userColumns = `id, email, password_hash, first_name, last_name, email_verified,
		       verification_token_hash, verification_expires_at,
		       reset_token_hash, reset_expires_at,
		       failed_attempts, locked_until, preferences, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewUserRepository creates a new UserRepository. pool is usually a
// *pgxpool.Pool.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

var _ auth.UserRepository = (*UserRepository)(nil)

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	prefsJSON, err := json.Marshal(user.Preferences)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "marshal preferences").Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, email_verified,
			verification_token_hash, verification_expires_at,
			reset_token_hash, reset_expires_at,
			failed_attempts, locked_until, preferences, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.EmailVerified,
		user.VerificationTokenHash,
		user.VerificationExpiresAt,
		user.ResetTokenHash,
		user.ResetExpiresAt,
		user.FailedAttempts,
		user.LockedUntil,
		prefsJSON,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if sentinel := uniqueViolation(err); sentinel != nil {
			return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrap(sentinel)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// uniqueViolation maps a unique-index violation to the matching auth
// sentinel, or returns nil for any other error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case emailIndex:
		return auth.ErrEmailTaken
	case verificationIndex, resetIndex:
		return auth.ErrTokenCollision
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.getOne(ctx, "id", id.String(), `SELECT `+userColumns+` FROM users WHERE id = $1`)
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, "email", email, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`)
}

// GetByVerificationToken retrieves the user holding a verification token digest.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.getOne(ctx, "verification_token", tokenHash,
		`SELECT `+userColumns+` FROM users WHERE verification_token_hash = $1`)
}

// GetByResetToken retrieves the user holding a reset token digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.getOne(ctx, "reset_token", tokenHash,
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`)
}

func (r *UserRepository) getOne(ctx context.Context, key, value, query string) (*auth.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	return user, nil
}

// Update applies patch to the user with id.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) error {
	query, args, err := buildUpdate(id, patch, r.now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "build update").Wrap(err)
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		if sentinel := uniqueViolation(err); sentinel != nil {
			return oops.Code("USER_UPDATE_FAILED").With("id", id.String()).Wrap(sentinel)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// buildUpdate renders patch as a single UPDATE statement. Clear flags are
// resolved against the matching set so no column is assigned twice.
func buildUpdate(id ulid.ULID, p auth.UserPatch, now time.Time) (string, []any, error) {
	var sets []string
	args := []any{id.String()}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.FirstName != nil {
		set("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		set("last_name", *p.LastName)
	}
	if p.EmailVerified != nil {
		set("email_verified", *p.EmailVerified)
	}
	if p.Preferences != nil {
		prefsJSON, err := json.Marshal(p.Preferences)
		if err != nil {
			return "", nil, err
		}
		set("preferences", prefsJSON)
	}

	switch {
	case p.Verification != nil:
		set("verification_token_hash", p.Verification.Hash)
		set("verification_expires_at", p.Verification.ExpiresAt)
	case p.ClearVerification:
		sets = append(sets, "verification_token_hash = NULL", "verification_expires_at = NULL")
	}
	switch {
	case p.Reset != nil:
		set("reset_token_hash", p.Reset.Hash)
		set("reset_expires_at", p.Reset.ExpiresAt)
	case p.ClearReset:
		sets = append(sets, "reset_token_hash = NULL", "reset_expires_at = NULL")
	}

	switch {
	case p.FailedAttempts != nil:
		set("failed_attempts", *p.FailedAttempts)
	case p.ClearLockout:
		sets = append(sets, "failed_attempts = 0")
	}
	switch {
	case p.LockedUntil != nil:
		set("locked_until", *p.LockedUntil)
	case p.ClearLockout:
		sets = append(sets, "locked_until = NULL")
	}

	set("updated_at", now)
	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = $1", args, nil
}

// Delete removes a user. Search history goes with it via ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks database connectivity.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("STORAGE_UNAVAILABLE").With("driver", "postgres").Wrap(err)
	}
	return nil
}

// scanUser scans a single row. pgx.ErrNoRows is returned unwrapped for
// callers to handle.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u         auth.User
		idStr     string
		prefsJSON []byte
	)
	err := row.Scan(
		&idStr,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.EmailVerified,
		&u.VerificationTokenHash,
		&u.VerificationExpiresAt,
		&u.ResetTokenHash,
		&u.ResetExpiresAt,
		&u.FailedAttempts,
		&u.LockedUntil,
		&prefsJSON,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}

	u.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}

	u.Preferences = auth.DefaultPreferences()
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &u.Preferences); err != nil {
			return nil, oops.Code("USER_SCAN_FAILED").With("id", idStr).Wrap(err)
		}
	}
	return &u, nil
}
