// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package mongo implements auth.UserRepository on MongoDB.
package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/store"
)

// userDoc is the stored shape of a user. Nil token fields are omitted so
// the partial unique indexes ignore them.
type userDoc struct {
	ID                    string           `bson:"_id"`
	Email                 string           `bson:"email"`
	PasswordHash          string           `bson:"password_hash"`
	FirstName             string           `bson:"first_name"`
	LastName              string           `bson:"last_name"`
	EmailVerified         bool             `bson:"email_verified"`
	VerificationTokenHash *string          `bson:"verification_token_hash,omitempty"`
	VerificationExpiresAt *time.Time       `bson:"verification_expires_at,omitempty"`
	ResetTokenHash        *string          `bson:"reset_token_hash,omitempty"`
	ResetExpiresAt        *time.Time       `bson:"reset_expires_at,omitempty"`
	FailedAttempts        int              `bson:"failed_attempts"`
	LockedUntil           *time.Time       `bson:"locked_until,omitempty"`
	Preferences           auth.Preferences `bson:"preferences"`
	CreatedAt             time.Time        `bson:"created_at"`
	UpdatedAt             time.Time        `bson:"updated_at"`
}

func toDoc(u *auth.User) userDoc {
	return userDoc{
		ID:                    u.ID.String(),
		Email:                 u.Email,
		PasswordHash:          u.PasswordHash,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		EmailVerified:         u.EmailVerified,
		VerificationTokenHash: u.VerificationTokenHash,
		VerificationExpiresAt: u.VerificationExpiresAt,
		ResetTokenHash:        u.ResetTokenHash,
		ResetExpiresAt:        u.ResetExpiresAt,
		FailedAttempts:        u.FailedAttempts,
		LockedUntil:           u.LockedUntil,
		Preferences:           u.Preferences,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func (d *userDoc) toUser() (*auth.User, error) {
	id, err := ulid.Parse(d.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", d.ID).Wrap(err)
	}
	return &auth.User{
		ID:                    id,
		Email:                 d.Email,
		PasswordHash:          d.PasswordHash,
		FirstName:             d.FirstName,
		LastName:              d.LastName,
		EmailVerified:         d.EmailVerified,
		VerificationTokenHash: d.VerificationTokenHash,
		VerificationExpiresAt: utcPtr(d.VerificationExpiresAt),
		ResetTokenHash:        d.ResetTokenHash,
		ResetExpiresAt:        utcPtr(d.ResetExpiresAt),
		FailedAttempts:        d.FailedAttempts,
		LockedUntil:           utcPtr(d.LockedUntil),
		Preferences:           d.Preferences,
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// UserRepository implements auth.UserRepository using MongoDB.
type UserRepository struct {
	db    *mongo.Database
	users *mongo.Collection
	now   func() time.Time
}

// NewUserRepository creates a repository over the users collection of db.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{db: db, users: db.Collection(store.UsersCollection), now: time.Now}
}

var _ auth.UserRepository = (*UserRepository)(nil)

// duplicateKey maps a duplicate-key error to the matching auth sentinel.
func duplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, store.UsersEmailIndex):
		return auth.ErrEmailTaken
	case strings.Contains(msg, store.UsersVerificationIndex), strings.Contains(msg, store.UsersResetIndex):
		return auth.ErrTokenCollision
	}
	return nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.users.InsertOne(ctx, toDoc(user))
	if err != nil {
		if sentinel := duplicateKey(err); sentinel != nil {
			return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrap(sentinel)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, key string, value any, filter bson.D) (*auth.User, error) {
	var doc userDoc
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code(auth.CodeUserNotFound).With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	return doc.toUser()
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.findOne(ctx, "id", id.String(), bson.D{{Key: "_id", Value: id.String()}})
}

// GetByEmail retrieves a user by email. Emails are stored normalized.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	return r.findOne(ctx, "email", email, bson.D{{Key: "email", Value: email}})
}

// GetByVerificationToken retrieves the user holding a verification token digest.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.findOne(ctx, "verification_token", tokenHash,
		bson.D{{Key: "verification_token_hash", Value: tokenHash}})
}

// GetByResetToken retrieves the user holding a reset token digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.findOne(ctx, "reset_token", tokenHash,
		bson.D{{Key: "reset_token_hash", Value: tokenHash}})
}

// buildUpdate renders patch as a $set/$unset update document.
func buildUpdate(p auth.UserPatch, now time.Time) bson.D {
	set := bson.D{}
	unset := bson.D{}
	add := func(key string, v any) { set = append(set, bson.E{Key: key, Value: v}) }
	drop := func(keys ...string) {
		for _, k := range keys {
			unset = append(unset, bson.E{Key: k, Value: ""})
		}
	}

	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.FirstName != nil {
		add("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		add("last_name", *p.LastName)
	}
	if p.EmailVerified != nil {
		add("email_verified", *p.EmailVerified)
	}
	if p.Preferences != nil {
		add("preferences", *p.Preferences)
	}

	switch {
	case p.Verification != nil:
		add("verification_token_hash", p.Verification.Hash)
		add("verification_expires_at", p.Verification.ExpiresAt)
	case p.ClearVerification:
		drop("verification_token_hash", "verification_expires_at")
	}
	switch {
	case p.Reset != nil:
		add("reset_token_hash", p.Reset.Hash)
		add("reset_expires_at", p.Reset.ExpiresAt)
	case p.ClearReset:
		drop("reset_token_hash", "reset_expires_at")
	}

	switch {
	case p.FailedAttempts != nil:
		add("failed_attempts", *p.FailedAttempts)
	case p.ClearLockout:
		add("failed_attempts", 0)
	}
	switch {
	case p.LockedUntil != nil:
		add("locked_until", *p.LockedUntil)
	case p.ClearLockout:
		drop("locked_until")
	}

	add("updated_at", now)
	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

// Update applies patch to the user with id.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) error {
	res, err := r.users.UpdateByID(ctx, id.String(), buildUpdate(patch, r.now().UTC()))
	if err != nil {
		if sentinel := duplicateKey(err); sentinel != nil {
			return oops.Code("USER_UPDATE_FAILED").With("id", id.String()).Wrap(sentinel)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a user document. Search history is removed by the
// account service, not here.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	res, err := r.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if res.DeletedCount == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks database connectivity.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return oops.Code("STORAGE_UNAVAILABLE").With("driver", "mongo").Wrap(err)
	}
	return nil
}
