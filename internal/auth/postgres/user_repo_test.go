// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/pkg/errutil"
)

var userCols = []string{
	"id", "email", "password_hash", "first_name", "last_name", "email_verified",
	"verification_token_hash", "verification_expires_at",
	"reset_token_hash", "reset_expires_at",
	"failed_attempts", "locked_until", "preferences", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewUserRepository(mock), mock
}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	u, err := auth.NewUser("ada@example.com", "$argon2id$stub", "Ada", "Lovelace")
	require.NoError(t, err)
	return u
}

func userRow(u *auth.User) []any {
	prefs, _ := json.Marshal(u.Preferences) //nolint:errcheck // static struct
	return []any{
		u.ID.String(), u.Email, u.PasswordHash, u.FirstName, u.LastName, u.EmailVerified,
		u.VerificationTokenHash, u.VerificationExpiresAt,
		u.ResetTokenHash, u.ResetExpiresAt,
		u.FailedAttempts, u.LockedUntil, prefs, u.CreatedAt, u.UpdatedAt,
	}
}

func uniqueErr(index string) error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: index}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		execErr  error
		sentinel error
	}{
		{name: "success"},
		{name: "duplicate email", execErr: uniqueErr(emailIndex), sentinel: auth.ErrEmailTaken},
		{name: "duplicate verification token", execErr: uniqueErr(verificationIndex), sentinel: auth.ErrTokenCollision},
		{name: "other failure", execErr: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			u := testUser(t)

			exp := mock.ExpectExec(`INSERT INTO users`).
				WithArgs(u.ID.String(), u.Email, u.PasswordHash, "Ada", "Lovelace", false,
					pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg())
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := repo.Create(ctx, u)
			switch {
			case tt.execErr == nil:
				require.NoError(t, err)
			case tt.sentinel != nil:
				require.ErrorIs(t, err, tt.sentinel)
				errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
			default:
				require.Error(t, err)
				assert.NotErrorIs(t, err, auth.ErrEmailTaken)
				errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
			}
		})
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		u := testUser(t)
		u.FailedAttempts = 2
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("ada@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(userRow(u)...))

		got, err := repo.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.Email, got.Email)
		assert.Equal(t, 2, got.FailedAttempts)
		assert.Equal(t, auth.DefaultPreferences(), got.Preferences)
		assert.Nil(t, got.VerificationTokenHash)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\)`).
			WithArgs("nobody@example.com").
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
	})

	t.Run("query failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\)`).
			WithArgs("ada@example.com").
			WillReturnError(errors.New("timeout"))

		_, err := repo.GetByEmail(ctx, "ada@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_GetByToken(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	u := testUser(t)
	hash := auth.HashToken("tok")
	exp := time.Now().Add(time.Hour).UTC()
	u.VerificationTokenHash, u.VerificationExpiresAt = &hash, &exp

	mock.ExpectQuery(`WHERE verification_token_hash = \$1`).
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(userRow(u)...))
	mock.ExpectQuery(`WHERE reset_token_hash = \$1`).
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows(userCols))

	got, err := repo.GetByVerificationToken(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, got.VerificationTokenHash)
	assert.Equal(t, hash, *got.VerificationTokenHash)

	_, err = repo.GetByResetToken(ctx, hash)
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestBuildUpdate(t *testing.T) {
	id := ulid.Make()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verified := true
	failures := 3
	until := now.Add(time.Minute)

	tests := []struct {
		name      string
		patch     auth.UserPatch
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "empty patch only touches updated_at",
			patch:     auth.UserPatch{},
			wantQuery: "UPDATE users SET updated_at = $2 WHERE id = $1",
			wantArgs:  []any{id.String(), now},
		},
		{
			name:  "verify email clears token",
			patch: auth.UserPatch{EmailVerified: &verified, ClearVerification: true},
			wantQuery: "UPDATE users SET email_verified = $2, verification_token_hash = NULL, " +
				"verification_expires_at = NULL, updated_at = $3 WHERE id = $1",
			wantArgs: []any{id.String(), true, now},
		},
		{
			name:  "failure counter with lock",
			patch: auth.UserPatch{FailedAttempts: &failures, LockedUntil: &until},
			wantQuery: "UPDATE users SET failed_attempts = $2, locked_until = $3, " +
				"updated_at = $4 WHERE id = $1",
			wantArgs: []any{id.String(), 3, until, now},
		},
		{
			name:      "clear lockout",
			patch:     auth.UserPatch{ClearLockout: true},
			wantQuery: "UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1",
			wantArgs:  []any{id.String(), now},
		},
		{
			name:  "new reset grant wins over clear",
			patch: auth.UserPatch{Reset: &auth.TokenGrant{Hash: "h", ExpiresAt: until}, ClearReset: true},
			wantQuery: "UPDATE users SET reset_token_hash = $2, reset_expires_at = $3, " +
				"updated_at = $4 WHERE id = $1",
			wantArgs: []any{id.String(), "h", until, now},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := buildUpdate(id, tt.patch, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	verified := true

	t.Run("success", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE users SET email_verified`).
			WithArgs(id.String(), true, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, repo.Update(ctx, id, auth.UserPatch{EmailVerified: &verified}))
	})

	t.Run("missing user", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(id.String(), true, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := repo.Update(ctx, id, auth.UserPatch{EmailVerified: &verified})
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("token collision", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		grant := &auth.TokenGrant{Hash: "h", ExpiresAt: time.Now()}
		mock.ExpectExec(`UPDATE users SET verification_token_hash`).
			WithArgs(id.String(), "h", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(uniqueErr(verificationIndex))
		err := repo.Update(ctx, id, auth.UserPatch{Verification: grant})
		require.ErrorIs(t, err, auth.ErrTokenCollision)
	})
}

func TestUserRepository_Delete(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	repo, mock := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(ctx, id))
	require.ErrorIs(t, repo.Delete(ctx, id), auth.ErrNotFound)
}

func TestUserRepository_Ping(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	require.NoError(t, repo.Ping(context.Background()))
	errutil.AssertErrorCode(t, repo.Ping(context.Background()), "STORAGE_UNAVAILABLE")
}
