// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package account_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skycast/skycast/internal/account"
	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/auth/mocks"
	"github.com/skycast/skycast/pkg/errutil"
)

type stubHistory struct {
	cleared []ulid.ULID
	err     error
}

func (s *stubHistory) Clear(_ context.Context, userID ulid.ULID) (int64, error) {
	s.cleared = append(s.cleared, userID)
	return 2, s.err
}

func newUser(t *testing.T) *auth.User {
	t.Helper()
	u, err := auth.NewUser("ada@example.com", "$argon2id$stub", "Ada", "Lovelace")
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

func TestNewService_NilUsers(t *testing.T) {
	_, err := account.NewService(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users repository is required")
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()
	users := mocks.NewMockUserRepository(t)
	svc, err := account.NewService(users, nil, nil)
	require.NoError(t, err)

	u := newUser(t)
	missing := ulid.Make()
	users.On("GetByID", ctx, u.ID).Return(u, nil)
	users.On("GetByID", ctx, missing).Return(nil, auth.ErrNotFound)

	got, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = svc.Profile(ctx, missing)
	errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
}

func TestService_UpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("trims names and merges preferences", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := account.NewService(users, nil, nil)
		require.NoError(t, err)
		u := newUser(t)

		users.On("GetByID", ctx, u.ID).Return(u, nil)
		users.On("Update", ctx, u.ID, mock.MatchedBy(func(p auth.UserPatch) bool {
			return p.FirstName != nil && *p.FirstName == "Grace" &&
				p.LastName == nil &&
				p.Preferences != nil &&
				p.Preferences.Theme == auth.ThemeDark &&
				p.Preferences.TemperatureUnit == auth.Celsius &&
				p.Preferences.Notifications
		})).Return(nil)

		_, err = svc.UpdateProfile(ctx, u.ID, account.ProfileUpdate{
			FirstName:   ptr("  Grace "),
			Preferences: &account.PreferencesPatch{Theme: ptr(auth.ThemeDark)},
		})
		require.NoError(t, err)
	})

	t.Run("rejects long names", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := account.NewService(users, nil, nil)
		require.NoError(t, err)
		u := newUser(t)
		users.On("GetByID", ctx, u.ID).Return(u, nil)

		_, err = svc.UpdateProfile(ctx, u.ID, account.ProfileUpdate{LastName: ptr(strings.Repeat("x", 51))})
		errutil.AssertErrorCode(t, err, auth.CodeInvalidName)
	})

	t.Run("rejects unknown preference values", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := account.NewService(users, nil, nil)
		require.NoError(t, err)
		u := newUser(t)
		users.On("GetByID", ctx, u.ID).Return(u, nil)

		_, err = svc.UpdatePreferences(ctx, u.ID, account.PreferencesPatch{TemperatureUnit: ptr(auth.TemperatureUnit("kelvin"))})
		errutil.AssertErrorCode(t, err, "USER_INVALID_PREFERENCES")
	})

	t.Run("empty update is a read", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := account.NewService(users, nil, nil)
		require.NoError(t, err)
		u := newUser(t)
		users.On("GetByID", ctx, u.ID).Return(u, nil).Once()

		got, err := svc.UpdateProfile(ctx, u.ID, account.ProfileUpdate{})
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("clears history then user", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hist := &stubHistory{}
		svc, err := account.NewService(users, hist, nil)
		require.NoError(t, err)
		id := ulid.Make()
		users.On("Delete", ctx, id).Return(nil)

		require.NoError(t, svc.Delete(ctx, id))
		assert.Equal(t, []ulid.ULID{id}, hist.cleared)
	})

	t.Run("history failure keeps the user", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := account.NewService(users, &stubHistory{err: errors.New("down")}, nil)
		require.NoError(t, err)

		err = svc.Delete(ctx, ulid.Make())
		errutil.AssertErrorCode(t, err, "ACCOUNT_DELETE_FAILED")
		users.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("missing user", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		svc, err := account.NewService(users, nil, nil)
		require.NoError(t, err)
		id := ulid.Make()
		users.On("Delete", ctx, id).Return(auth.ErrNotFound)

		errutil.AssertErrorCode(t, svc.Delete(ctx, id), auth.CodeUserNotFound)
	})
}
