// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package account manages a signed-in user's profile, preferences and
// account lifecycle.
package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/auth"
)

// HistoryClearer removes a user's search history.
type HistoryClearer interface {
	Clear(ctx context.Context, userID ulid.ULID) (int64, error)
}

// PreferencesPatch changes selected preferences. Nil fields keep their
// current value.
type PreferencesPatch struct {
	TemperatureUnit *auth.TemperatureUnit `json:"temperatureUnit,omitempty"`
	Theme           *auth.Theme           `json:"theme,omitempty"`
	Notifications   *bool                 `json:"notifications,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PreferencesPatch) IsEmpty() bool {
	return p.TemperatureUnit == nil && p.Theme == nil && p.Notifications == nil
}

// Merge applies p onto base.
func (p PreferencesPatch) Merge(base auth.Preferences) auth.Preferences {
	if p.TemperatureUnit != nil {
		base.TemperatureUnit = *p.TemperatureUnit
	}
	if p.Theme != nil {
		base.Theme = *p.Theme
	}
	if p.Notifications != nil {
		base.Notifications = *p.Notifications
	}
	return base
}

// ProfileUpdate changes selected profile fields.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Preferences *PreferencesPatch
}

// Service implements profile operations.
type Service struct {
	users   auth.UserRepository
	history HistoryClearer
	logger  *slog.Logger
}

// NewService creates a Service. history may be nil when search history is
// removed by the database itself.
func NewService(users auth.UserRepository, history HistoryClearer, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("users repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, history: history, logger: logger}, nil
}

func userNotFound(userID ulid.ULID) error {
	return oops.Code(auth.CodeUserNotFound).With("user_id", userID.String()).Errorf("user not found")
}

// Profile returns the account of userID.
func (s *Service) Profile(ctx context.Context, userID ulid.ULID) (*auth.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, userNotFound(userID)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_PROFILE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return user, nil
}

// UpdateProfile trims and validates names, merges preferences and returns
// the updated account.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, upd ProfileUpdate) (*auth.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	var patch auth.UserPatch
	for _, name := range []struct {
		in  *string
		out **string
	}{{upd.FirstName, &patch.FirstName}, {upd.LastName, &patch.LastName}} {
		if name.in == nil {
			continue
		}
		trimmed := strings.TrimSpace(*name.in)
		if !auth.IsValidName(trimmed) {
			return nil, oops.Code(auth.CodeInvalidName).
				Errorf("names must be at most %d characters", auth.MaxNameLength)
		}
		*name.out = &trimmed
	}
	if upd.Preferences != nil && !upd.Preferences.IsEmpty() {
		prefs := upd.Preferences.Merge(user.Preferences)
		if err := prefs.Validate(); err != nil {
			return nil, err
		}
		patch.Preferences = &prefs
	}

	if patch.IsEmpty() {
		return user, nil
	}
	if err := s.update(ctx, userID, patch); err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

// UpdatePreferences merges patch into the stored preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID ulid.ULID, patch PreferencesPatch) (*auth.Preferences, error) {
	user, err := s.UpdateProfile(ctx, userID, ProfileUpdate{Preferences: &patch})
	if err != nil {
		return nil, err
	}
	return &user.Preferences, nil
}

// Delete removes the account and its search history.
func (s *Service) Delete(ctx context.Context, userID ulid.ULID) error {
	if s.history != nil {
		n, err := s.history.Clear(ctx, userID)
		if err != nil {
			return oops.Code("ACCOUNT_DELETE_FAILED").
				With("operation", "clear history").
				With("user_id", userID.String()).
				Wrap(err)
		}
		s.logger.DebugContext(ctx, "cleared search history", "user_id", userID.String(), "entries", n)
	}

	err := s.users.Delete(ctx, userID)
	if errors.Is(err, auth.ErrNotFound) {
		return userNotFound(userID)
	}
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", userID.String())
	return nil
}

func (s *Service) update(ctx context.Context, userID ulid.ULID, patch auth.UserPatch) error {
	err := s.users.Update(ctx, userID, patch)
	if errors.Is(err, auth.ErrNotFound) {
		return userNotFound(userID)
	}
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}
