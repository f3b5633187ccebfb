// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package store

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB collection names.
const (
	UsersCollection   = "users"
	HistoryCollection = "search_history"
)

// MongoDB index names. Repositories match duplicate-key errors on them.
const (
	UsersEmailIndex        = "users_email_key"
	UsersVerificationIndex = "users_verification_token_key"
	UsersResetIndex        = "users_reset_token_key"
	HistoryUserIndex       = "search_history_user_searched_idx"
)

// OpenMongo connects to uri, waits for the primary to answer and ensures
// the Skycast indexes exist on database dbName.
func OpenMongo(ctx context.Context, uri, dbName string, opts ConnectOptions) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetMinPoolSize(5).
		SetMaxPoolSize(50).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, oops.Code("STORAGE_CONFIG_INVALID").With("driver", "mongo").Wrap(err)
	}

	err = connectWithRetry(ctx, "mongo", opts, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx)) //nolint:errcheck // connect error takes precedence
		return nil, oops.Code("STORAGE_CONNECT_FAILED").With("driver", "mongo").Wrap(err)
	}

	db := client.Database(dbName)
	if err := EnsureMongoIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx)) //nolint:errcheck // index error takes precedence
		return nil, err
	}
	return db, nil
}

func tokenIndex(field, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
		Options: options.Index().
			SetName(name).
			SetUnique(true).
			SetPartialFilterExpression(bson.D{{Key: field, Value: bson.D{{Key: "$type", Value: "string"}}}}),
	}
}

// EnsureMongoIndexes creates the unique and lookup indexes the repositories
// rely on. It is idempotent.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	users := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(UsersEmailIndex).SetUnique(true),
		},
		tokenIndex("verification_token_hash", UsersVerificationIndex),
		tokenIndex("reset_token_hash", UsersResetIndex),
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, users); err != nil {
		return oops.Code("STORAGE_INDEX_FAILED").With("collection", UsersCollection).Wrap(err)
	}

	history := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "searched_at", Value: -1}},
		Options: options.Index().SetName(HistoryUserIndex),
	}}
	if _, err := db.Collection(HistoryCollection).Indexes().CreateMany(ctx, history); err != nil {
		return oops.Code("STORAGE_INDEX_FAILED").With("collection", HistoryCollection).Wrap(err)
	}
	return nil
}
