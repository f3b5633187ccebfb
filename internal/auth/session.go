// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultSessionTTL is the lifetime of a session token when none is configured.
const DefaultSessionTTL = 24 * time.Hour

// Identity is the user data embedded in a session token.
type Identity struct {
	UserID    ulid.ULID
	Email     string
	FirstName string
	LastName  string
}

// Claims is a verified session. Values are produced only by
// SessionIssuer.Verify; the zero value carries no identity.
type Claims struct {
	identity  Identity
	tokenID   string
	issuedAt  time.Time
	expiresAt time.Time
}

// UserID returns the authenticated user's id.
func (c *Claims) UserID() ulid.ULID { return c.identity.UserID }

// Identity returns the embedded identity fields.
func (c *Claims) Identity() Identity { return c.identity }

// TokenID returns the token's unique id (jti).
func (c *Claims) TokenID() string { return c.tokenID }

// IssuedAt returns when the token was issued.
func (c *Claims) IssuedAt() time.Time { return c.issuedAt }

// ExpiresAt returns when the token stops being valid.
func (c *Claims) ExpiresAt() time.Time { return c.expiresAt }

// sessionClaims is the wire form of a session token payload.
type sessionClaims struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"given_name,omitempty"`
	LastName  string `json:"family_name,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies HS256 session tokens. Safe for
// concurrent use; its secret is read-only after construction.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// SessionOption configures a SessionIssuer.
type SessionOption func(*SessionIssuer)

// WithSessionTTL sets the token lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionIssuer) { s.ttl = ttl }
}

// WithIssuer sets the iss claim written and required on verify.
func WithIssuer(issuer string) SessionOption {
	return func(s *SessionIssuer) { s.issuer = issuer }
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionIssuer) { s.now = now }
}

// NewSessionIssuer creates an issuer for the given secret. An empty secret
// or a non-positive TTL is an AUTH_CONFIG_INVALID error; callers treat it
// as fatal at startup.
func NewSessionIssuer(secret []byte, opts ...SessionOption) (*SessionIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code(CodeConfigInvalid).
			With("setting", "jwt_secret").
			Errorf("session signing secret is not configured")
	}
	s := &SessionIssuer{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, oops.Code(CodeConfigInvalid).
			With("setting", "session_ttl").
			Errorf("session ttl must be positive, got %s", s.ttl)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue returns a signed token for id that expires after the configured TTL.
func (s *SessionIssuer) Issue(id Identity) (string, time.Time, error) {
	if id.UserID.Compare(ulid.ULID{}) == 0 {
		return "", time.Time{}, oops.Code("SESSION_ISSUE_FAILED").Errorf("user id is required")
	}

	now := s.now()
	// exp is encoded in whole seconds; round up so the token never lapses
	// before the ttl has elapsed.
	expiresAt := now.Add(s.ttl)
	if rounded := expiresAt.Truncate(time.Second); !rounded.Equal(expiresAt) {
		expiresAt = rounded.Add(time.Second)
	}
	claims := sessionClaims{
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    s.issuer,
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_ISSUE_FAILED").
			With("user_id", id.UserID.String()).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify checks the token's signature and expiry and returns its claims.
// Failures carry SESSION_EXPIRED, SESSION_SIGNATURE_INVALID or
// SESSION_MALFORMED.
func (s *SessionIssuer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeSessionMissing).Errorf("session token is missing")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	userID, err := ulid.Parse(parsed.Subject)
	if err != nil {
		return nil, oops.Code(CodeSessionMalformed).
			With("subject", parsed.Subject).
			Wrap(err)
	}

	return &Claims{
		identity: Identity{
			UserID:    userID,
			Email:     parsed.Email,
			FirstName: parsed.FirstName,
			LastName:  parsed.LastName,
		},
		tokenID:   parsed.ID,
		issuedAt:  numericTime(parsed.IssuedAt),
		expiresAt: numericTime(parsed.ExpiresAt),
	}, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return oops.Code(CodeSessionMalformed).Wrap(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code(CodeSessionSignatureInvalid).Wrap(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeSessionExpired).Wrap(err)
	default:
		return oops.Code(CodeSessionMalformed).Wrap(err)
	}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

// IssueSession signs a token for id with secret, valid for ttl.
func IssueSession(id Identity, secret []byte, ttl time.Duration) (string, error) {
	issuer, err := NewSessionIssuer(secret, WithSessionTTL(ttl))
	if err != nil {
		return "", err
	}
	token, _, err := issuer.Issue(id)
	return token, err
}

// VerifySession verifies token against secret.
func VerifySession(token string, secret []byte) (*Claims, error) {
	issuer, err := NewSessionIssuer(secret)
	if err != nil {
		return nil, err
	}
	return issuer.Verify(token)
}
