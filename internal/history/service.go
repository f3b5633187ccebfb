// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package history

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/pkg/errutil"
)

// Service records and serves search history.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("HISTORY_SERVICE_INVALID").Errorf("history repository is required")
	}
	s := &Service{repo: repo, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record stores a search. Failures are logged and otherwise ignored so a
// storage hiccup never fails the weather lookup that triggered it.
func (s *Service) Record(ctx context.Context, userID ulid.ULID, query string, loc Location) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		query = string([]rune(query)[:MaxQueryLength])
	}

	entry := &Entry{
		ID:         ulid.Make(),
		UserID:     userID,
		Query:      query,
		City:       loc.City,
		Country:    loc.Country,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		SearchedAt: s.now().UTC(),
	}
	if err := s.repo.Add(ctx, entry); err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "failed to record search history",
			oops.With("user_id", userID.String()).Wrap(err))
	}
}

// List returns up to limit entries, newest first. Out-of-range limits
// fall back to DefaultLimit.
func (s *Service) List(ctx context.Context, userID ulid.ULID, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	entries, err := s.repo.List(ctx, userID, limit)
	if err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Delete removes one entry owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id ulid.ULID) error {
	err := s.repo.Delete(ctx, userID, id)
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeNotFound).
			With("user_id", userID.String()).
			With("id", id.String()).
			Errorf("history entry not found")
	}
	if err != nil {
		return oops.Code("HISTORY_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// Clear removes every entry of userID and returns how many were removed.
func (s *Service) Clear(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := s.repo.Clear(ctx, userID)
	if err != nil {
		return 0, oops.Code("HISTORY_CLEAR_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return n, nil
}
