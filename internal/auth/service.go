// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/pkg/errutil"
)

// Token lifetimes.
const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = time.Hour
)

// dummyPasswordHash is verified when a user doesn't exist so unknown
// emails take as long as wrong passwords. It matches no password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalisation, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service implements account registration, login, email verification and
// password reset on top of a UserRepository.
type Service struct {
	users           UserRepository
	hashes          *HashPool
	sessions        *SessionIssuer
	logger          *slog.Logger
	now             func() time.Time
	hashWorkers     int
	verificationTTL time.Duration
	resetTTL        time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashWorkers bounds concurrent password hash operations.
func WithHashWorkers(n int) Option {
	return func(s *Service) { s.hashWorkers = n }
}

// WithVerificationTTL sets how long verification tokens stay valid.
func WithVerificationTTL(ttl time.Duration) Option {
	return func(s *Service) { s.verificationTTL = ttl }
}

// WithResetTTL sets how long password reset tokens stay valid.
func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resetTTL = ttl }
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, sessions *SessionIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("session issuer is required")
	}

	s := &Service{
		users:           users,
		sessions:        sessions,
		logger:          slog.Default(),
		now:             time.Now,
		verificationTTL: VerificationTokenTTL,
		resetTTL:        ResetTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger cannot be nil")
	}
	if s.verificationTTL <= 0 || s.resetTTL <= 0 {
		return nil, oops.Code(CodeConfigInvalid).Errorf("token ttl must be positive")
	}
	s.hashes = NewHashPool(hasher, s.hashWorkers)
	return s, nil
}

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Registration is the result of a successful Register call. The caller
// delivers VerificationToken out of band.
type Registration struct {
	UserID            ulid.ULID
	Email             string
	VerificationToken string
	ExpiresAt         time.Time
}

// Register validates input, stores a pending account with a hashed
// credential and returns its verification token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	email := NormalizeEmail(in.Email)
	if !IsValidEmail(email) {
		return nil, oops.Code(CodeInvalidEmail).With("email", email).Errorf("invalid email address")
	}
	if !IsStrongPassword(in.Password) {
		return nil, oops.Code(CodeWeakPassword).
			Errorf("password must be at least %d characters with upper and lower case letters and a digit", MinPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, emailTaken(email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hashes.Hash(ctx, in.Password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(email, hash, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}

	var token string
	for attempt := 0; ; attempt++ {
		var tokenHash string
		token, tokenHash, err = generateTokenPair()
		if err != nil {
			return nil, err
		}
		expiresAt := s.now().Add(s.verificationTTL)
		user.VerificationTokenHash = &tokenHash
		user.VerificationExpiresAt = &expiresAt

		err = s.users.Create(ctx, user)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, ErrEmailTaken):
			return nil, emailTaken(email)
		case errors.Is(err, ErrTokenCollision) && attempt == 0:
			s.logger.WarnContext(ctx, "verification token collision, retrying", "email", email)
			continue
		case errors.Is(err, ErrTokenCollision):
			return nil, oops.Code(CodeEmailTaken).
				With("email", email).
				Errorf("could not allocate a unique verification token")
		default:
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "create user").
				Wrap(err)
		}
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return &Registration{
		UserID:            user.ID,
		Email:             user.Email,
		VerificationToken: token,
		ExpiresAt:         *user.VerificationExpiresAt,
	}, nil
}

func emailTaken(email string) error {
	return oops.Code(CodeEmailTaken).With("email", email).Errorf("an account with this email already exists")
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

// Login authenticates by email and password and issues a session token.
//
// Unknown emails and wrong passwords fail identically and take the same
// time. Lockout and verification state are only reported once the
// password has been confirmed.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)

	user, lookupErr := s.users.GetByEmail(ctx, email)
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hashes.Verify(ctx, password, targetHash)
	if verifyErr != nil {
		if errutil.HasCode(verifyErr, "AUTH_HASH_ABANDONED") {
			return nil, verifyErr
		}
		if user != nil {
			// Stored credential is unreadable; treat as a mismatch.
			errutil.LogErrorContext(ctx, s.logger, slog.LevelError, "stored password hash is malformed", verifyErr)
		}
		valid = false
	}

	if user == nil || !valid {
		if user != nil {
			s.bestEffortUpdate(ctx, user.ID, failurePatch(user, s.now()), "record login failure")
		}
		return nil, invalidCredentials()
	}

	if user.IsLocked(s.now()) {
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", *user.LockedUntil).
			Errorf("account is temporarily locked")
	}

	if !user.EmailVerified {
		return nil, oops.Code(CodeUnverified).
			With("user_id", user.ID.String()).
			Errorf("email address has not been verified")
	}

	var patch UserPatch
	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		patch.ClearLockout = true
	}
	if s.hashes.NeedsUpgrade(user.PasswordHash) {
		if upgraded, err := s.hashes.Hash(ctx, password); err == nil {
			patch.PasswordHash = &upgraded
		}
	}
	if !patch.IsEmpty() {
		s.bestEffortUpdate(ctx, user.ID, patch, "reset login state")
	}

	token, expiresAt, err := s.sessions.Issue(user.Identity())
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// VerifyEmail consumes a verification token and marks its account verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.findByToken(ctx, token, s.users.GetByVerificationToken)
	if err != nil {
		return err
	}
	if !tokenLive(user.VerificationTokenHash, user.VerificationExpiresAt, token, s.now()) {
		return invalidToken("expired")
	}

	verified := true
	err = s.users.Update(ctx, user.ID, UserPatch{EmailVerified: &verified, ClearVerification: true})
	if errors.Is(err, ErrNotFound) {
		return invalidToken("not_found")
	}
	if err != nil {
		return oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "mark verified").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID.String())
	return nil
}

// ResendVerification rotates the verification token of a pending account.
// Unknown and already verified emails yield an empty token and no error.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	user, err := s.lookupForRecovery(ctx, email)
	if err != nil || user == nil || user.EmailVerified {
		return "", err
	}

	token, tokenHash, err := generateTokenPair()
	if err != nil {
		return "", err
	}
	grant := &TokenGrant{Hash: tokenHash, ExpiresAt: s.now().Add(s.verificationTTL)}
	if err := s.users.Update(ctx, user.ID, UserPatch{Verification: grant}); err != nil {
		return "", oops.Code("AUTH_RESEND_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// RequestPasswordReset issues a reset token for the account with email.
// Unknown emails yield an empty token and no error.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.lookupForRecovery(ctx, email)
	if err != nil || user == nil {
		return "", err
	}

	token, tokenHash, err := generateTokenPair()
	if err != nil {
		return "", err
	}
	grant := &TokenGrant{Hash: tokenHash, ExpiresAt: s.now().Add(s.resetTTL)}
	if err := s.users.Update(ctx, user.ID, UserPatch{Reset: grant}); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID.String())
	return token, nil
}

// ResetPassword consumes a reset token and replaces the account's password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !IsStrongPassword(newPassword) {
		return oops.Code(CodeWeakPassword).
			Errorf("password must be at least %d characters with upper and lower case letters and a digit", MinPasswordLength)
	}

	user, err := s.findByToken(ctx, token, s.users.GetByResetToken)
	if err != nil {
		return err
	}
	if !tokenLive(user.ResetTokenHash, user.ResetExpiresAt, token, s.now()) {
		return invalidToken("expired")
	}

	hash, err := s.hashes.Hash(ctx, newPassword)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}

	err = s.users.Update(ctx, user.ID, UserPatch{
		PasswordHash: &hash,
		ClearReset:   true,
		ClearLockout: true,
	})
	if errors.Is(err, ErrNotFound) {
		return invalidToken("not_found")
	}
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return nil
}

// Authenticate verifies a session token. It is the guard in front of
// every protected operation.
func (s *Service) Authenticate(_ context.Context, token string) (*Claims, error) {
	return s.sessions.Verify(token)
}

// Ping reports whether the user store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

// Wait blocks until in-flight hash operations finish. Called on shutdown.
func (s *Service) Wait() {
	s.hashes.Wait()
}

func invalidToken(reason string) error {
	return oops.Code(CodeInvalidToken).With("reason", reason).Errorf("token is invalid or has expired")
}

func (s *Service) findByToken(
	ctx context.Context,
	token string,
	lookup func(context.Context, string) (*User, error),
) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalidToken("empty")
	}
	user, err := lookup(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, invalidToken("not_found")
	}
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_LOOKUP_FAILED").Wrap(err)
	}
	return user, nil
}

// tokenLive reports whether token matches the stored digest and now is
// before the expiry.
func tokenLive(hash *string, expiresAt *time.Time, token string, now time.Time) bool {
	if hash == nil || expiresAt == nil {
		return false
	}
	return TokenMatches(strings.TrimSpace(token), *hash) && now.Before(*expiresAt)
}

// lookupForRecovery finds a user for resend/reset flows. A nil user with
// a nil error means the email is unknown.
func (s *Service) lookupForRecovery(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return nil, oops.Code(CodeInvalidEmail).With("email", email).Errorf("invalid email address")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

func (s *Service) bestEffortUpdate(ctx context.Context, id ulid.ULID, patch UserPatch, op string) {
	if err := s.users.Update(ctx, id, patch); err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "best-effort user update failed",
			oops.With("operation", op).With("user_id", id.String()).Wrap(err))
	}
}
