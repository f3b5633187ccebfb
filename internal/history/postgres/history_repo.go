// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package postgres implements history.Repository on PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/history"
)

type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository implements history.Repository using PostgreSQL.
type Repository struct {
	pool poolIface
}

// NewRepository creates a new Repository.
func NewRepository(pool poolIface) *Repository {
	return &Repository{pool: pool}
}

var _ history.Repository = (*Repository)(nil)

// Add stores an entry.
func (r *Repository) Add(ctx context.Context, e *history.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO search_history (id, user_id, query, city, country, latitude, longitude, searched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		e.ID.String(), e.UserID.String(), e.Query, e.City, e.Country, e.Latitude, e.Longitude, e.SearchedAt,
	)
	if err != nil {
		return oops.Code("HISTORY_ADD_FAILED").
			With("operation", "insert history").
			With("user_id", e.UserID.String()).
			Wrap(err)
	}
	return nil
}

// List returns the newest limit entries for userID.
func (r *Repository) List(ctx context.Context, userID ulid.ULID, limit int) ([]history.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, query, city, country, latitude, longitude, searched_at
		FROM search_history
		WHERE user_id = $1
		ORDER BY searched_at DESC, id DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").
			With("operation", "query history").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		e := history.Entry{UserID: userID}
		var idStr string
		if err := rows.Scan(&idStr, &e.Query, &e.City, &e.Country, &e.Latitude, &e.Longitude, &e.SearchedAt); err != nil {
			return nil, oops.Code("HISTORY_SCAN_FAILED").Wrap(err)
		}
		if e.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("HISTORY_INVALID_ID").With("id", idStr).Wrap(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").With("operation", "iterate history").Wrap(err)
	}
	return entries, nil
}

// Delete removes an entry owned by userID.
func (r *Repository) Delete(ctx context.Context, userID, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM search_history WHERE id = $1 AND user_id = $2`,
		id.String(), userID.String())
	if err != nil {
		return oops.Code("HISTORY_DELETE_FAILED").
			With("operation", "delete history entry").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(history.CodeNotFound).With("id", id.String()).Wrap(history.ErrNotFound)
	}
	return nil
}

// Clear removes all entries of userID.
func (r *Repository) Clear(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM search_history WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, oops.Code("HISTORY_CLEAR_FAILED").
			With("operation", "clear history").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}
