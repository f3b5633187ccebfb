// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AccountState is the verification state of an account.
type AccountState string

// Account states. An unregistered account has no record at all.
const (
	StatePendingVerification AccountState = "pending_verification"
	StateVerified            AccountState = "verified"
)

// TemperatureUnit is the unit weather temperatures are displayed in.
type TemperatureUnit string

// Supported temperature units.
const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

// Theme is the UI color scheme preference.
type Theme string

// Supported themes.
const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Preferences holds per-user display settings.
type Preferences struct {
	TemperatureUnit TemperatureUnit `json:"temperatureUnit" bson:"temperature_unit"`
	Theme           Theme           `json:"theme" bson:"theme"`
	Notifications   bool            `json:"notifications" bson:"notifications"`
}

// DefaultPreferences returns the settings given to new accounts.
func DefaultPreferences() Preferences {
	return Preferences{
		TemperatureUnit: Celsius,
		Theme:           ThemeSystem,
		Notifications:   true,
	}
}

// Validate checks that enumerated fields hold known values.
func (p Preferences) Validate() error {
	switch p.TemperatureUnit {
	case Celsius, Fahrenheit:
	default:
		return oops.Code(CodeInvalidPreferences).
			With("temperature_unit", string(p.TemperatureUnit)).
			Errorf("temperature unit must be celsius or fahrenheit")
	}
	switch p.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return oops.Code(CodeInvalidPreferences).
			With("theme", string(p.Theme)).
			Errorf("theme must be light, dark or system")
	}
	return nil
}

// User is an account record.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string

	EmailVerified         bool
	VerificationTokenHash *string
	VerificationExpiresAt *time.Time
	ResetTokenHash        *string
	ResetExpiresAt        *time.Time

	FailedAttempts int
	LockedUntil    *time.Time

	Preferences Preferences
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewUser creates a pending account. The email is normalized; the caller
// is responsible for validating the password before hashing it.
func NewUser(email, passwordHash, firstName, lastName string) (*User, error) {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return nil, oops.Code(CodeInvalidEmail).With("email", email).Errorf("invalid email address")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if !IsValidName(firstName) || !IsValidName(lastName) {
		return nil, oops.Code(CodeInvalidName).Errorf("names must be at most %d characters", MaxNameLength)
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Preferences:  DefaultPreferences(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// State returns the account's verification state.
func (u *User) State() AccountState {
	if u.EmailVerified {
		return StateVerified
	}
	return StatePendingVerification
}

// IsLocked reports whether the account is locked out at now.
func (u *User) IsLocked(now time.Time) bool {
	return IsLockedOut(u.LockedUntil, now)
}

// Identity returns the fields embedded in a session token.
func (u *User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// TokenGrant is a stored token digest with its expiry.
type TokenGrant struct {
	Hash      string
	ExpiresAt time.Time
}

// UserPatch is a partial update. Nil pointers and false Clear flags leave
// fields untouched. Clear flags are applied before the corresponding set.
type UserPatch struct {
	PasswordHash  *string
	FirstName     *string
	LastName      *string
	EmailVerified *bool
	Preferences   *Preferences

	Verification      *TokenGrant
	ClearVerification bool
	Reset             *TokenGrant
	ClearReset        bool

	FailedAttempts *int
	LockedUntil    *time.Time
	ClearLockout   bool
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.PasswordHash == nil && p.FirstName == nil && p.LastName == nil &&
		p.EmailVerified == nil && p.Preferences == nil &&
		p.Verification == nil && !p.ClearVerification &&
		p.Reset == nil && !p.ClearReset &&
		p.FailedAttempts == nil && p.LockedUntil == nil && !p.ClearLockout
}

// Apply writes the patch onto u and stamps UpdatedAt.
func (p UserPatch) Apply(u *User, now time.Time) {
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.Preferences != nil {
		u.Preferences = *p.Preferences
	}
	if p.ClearVerification {
		u.VerificationTokenHash, u.VerificationExpiresAt = nil, nil
	}
	if g := p.Verification; g != nil {
		hash, exp := g.Hash, g.ExpiresAt
		u.VerificationTokenHash, u.VerificationExpiresAt = &hash, &exp
	}
	if p.ClearReset {
		u.ResetTokenHash, u.ResetExpiresAt = nil, nil
	}
	if g := p.Reset; g != nil {
		hash, exp := g.Hash, g.ExpiresAt
		u.ResetTokenHash, u.ResetExpiresAt = &hash, &exp
	}
	if p.ClearLockout {
		u.FailedAttempts, u.LockedUntil = 0, nil
	}
	if p.FailedAttempts != nil {
		u.FailedAttempts = *p.FailedAttempts
	}
	if p.LockedUntil != nil {
		locked := *p.LockedUntil
		u.LockedUntil = &locked
	}
	u.UpdatedAt = now
}

// UserRepository persists users. Emails are stored normalized and are
// unique; token lookups take the stored digest, not the plaintext token.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByVerificationToken(ctx context.Context, tokenHash string) (*User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (*User, error)
	Update(ctx context.Context, id ulid.ULID, patch UserPatch) error
	Delete(ctx context.Context, id ulid.ULID) error
	Ping(ctx context.Context) error
}
