// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package mongo implements history.Repository on MongoDB.
package mongo

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/skycast/skycast/internal/history"
	"github.com/skycast/skycast/internal/store"
)

type entryDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Query      string    `bson:"query"`
	City       string    `bson:"city"`
	Country    string    `bson:"country"`
	Latitude   float64   `bson:"latitude"`
	Longitude  float64   `bson:"longitude"`
	SearchedAt time.Time `bson:"searched_at"`
}

// Repository implements history.Repository using MongoDB.
type Repository struct {
	entries *mongo.Collection
}

// NewRepository creates a repository over the search history collection of db.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{entries: db.Collection(store.HistoryCollection)}
}

var _ history.Repository = (*Repository)(nil)

// Add stores an entry.
func (r *Repository) Add(ctx context.Context, e *history.Entry) error {
	doc := entryDoc{
		ID:         e.ID.String(),
		UserID:     e.UserID.String(),
		Query:      e.Query,
		City:       e.City,
		Country:    e.Country,
		Latitude:   e.Latitude,
		Longitude:  e.Longitude,
		SearchedAt: e.SearchedAt,
	}
	if _, err := r.entries.InsertOne(ctx, doc); err != nil {
		return oops.Code("HISTORY_ADD_FAILED").
			With("operation", "insert history").
			With("user_id", e.UserID.String()).
			Wrap(err)
	}
	return nil
}

// List returns the newest limit entries for userID.
func (r *Repository) List(ctx context.Context, userID ulid.ULID, limit int) ([]history.Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "searched_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.entries.Find(ctx, bson.D{{Key: "user_id", Value: userID.String()}}, opts)
	if err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").
			With("operation", "find history").
			With("user_id", userID.String()).
			Wrap(err)
	}

	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").With("operation", "decode history").Wrap(err)
	}

	entries := make([]history.Entry, 0, len(docs))
	for _, d := range docs {
		id, err := ulid.Parse(d.ID)
		if err != nil {
			return nil, oops.Code("HISTORY_INVALID_ID").With("id", d.ID).Wrap(err)
		}
		entries = append(entries, history.Entry{
			ID:         id,
			UserID:     userID,
			Query:      d.Query,
			City:       d.City,
			Country:    d.Country,
			Latitude:   d.Latitude,
			Longitude:  d.Longitude,
			SearchedAt: d.SearchedAt.UTC(),
		})
	}
	return entries, nil
}

// Delete removes an entry owned by userID.
func (r *Repository) Delete(ctx context.Context, userID, id ulid.ULID) error {
	res, err := r.entries.DeleteOne(ctx, bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "user_id", Value: userID.String()},
	})
	if err != nil {
		return oops.Code("HISTORY_DELETE_FAILED").
			With("operation", "delete history entry").
			With("id", id.String()).
			Wrap(err)
	}
	if res.DeletedCount == 0 {
		return oops.Code(history.CodeNotFound).With("id", id.String()).Wrap(history.ErrNotFound)
	}
	return nil
}

// Clear removes all entries of userID.
func (r *Repository) Clear(ctx context.Context, userID ulid.ULID) (int64, error) {
	res, err := r.entries.DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID.String()}})
	if err != nil {
		return 0, oops.Code("HISTORY_CLEAR_FAILED").
			With("operation", "clear history").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return res.DeletedCount, nil
}
