// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package history keeps each user's recent weather searches.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Listing limits.
const (
	DefaultLimit = 50
	MaxLimit     = 50
)

// MaxQueryLength bounds the stored search text.
const MaxQueryLength = 100

// CodeNotFound is returned when an entry is missing or owned by someone else.
const CodeNotFound = "HISTORY_NOT_FOUND"

// ErrNotFound is the storage sentinel for a missing entry.
var ErrNotFound = errors.New("history entry not found")

// Location is the resolved place a search returned.
type Location struct {
	City      string
	Country   string
	Latitude  float64
	Longitude float64
}

// Entry is one recorded search.
type Entry struct {
	ID         ulid.ULID `json:"id"`
	UserID     ulid.ULID `json:"-"`
	Query      string    `json:"query"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	SearchedAt time.Time `json:"searchedAt"`
}

// Repository persists entries. List returns newest first. Delete only
// removes an entry owned by userID and returns ErrNotFound otherwise.
type Repository interface {
	Add(ctx context.Context, entry *Entry) error
	List(ctx context.Context, userID ulid.ULID, limit int) ([]Entry, error)
	Delete(ctx context.Context, userID, id ulid.ULID) error
	Clear(ctx context.Context, userID ulid.ULID) (int64, error)
}
