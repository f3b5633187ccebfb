// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/observability"
	"github.com/skycast/skycast/pkg/errutil"
)

const claimsKey = "skycast.claims"

type registerRequest struct {
	Email     string `json:"email" binding:"required,emailaddr"`
	Password  string `json:"password" binding:"required,strongpassword"`
	FirstName string `json:"firstName" binding:"max=50"`
	LastName  string `json:"lastName" binding:"max=50"`
}

type registerResponse struct {
	UserID            string     `json:"userId"`
	Email             string     `json:"email"`
	VerificationToken string     `json:"verificationToken,omitempty"`
	ExpiresAt         *time.Time `json:"verificationExpiresAt,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required,len=64,hexadecimal"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,emailaddr"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required,len=64,hexadecimal"`
	Password string `json:"password" binding:"required,strongpassword"`
}

// userView is the public form of a user record.
type userView struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	FirstName   string           `json:"firstName"`
	LastName    string           `json:"lastName"`
	Verified    bool             `json:"isVerified"`
	Preferences auth.Preferences `json:"preferences"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func viewUser(u *auth.User) userView {
	return userView{
		ID:          u.ID.String(),
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Verified:    u.EmailVerified,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	reg, err := s.deps.Auth.Register(ctx, auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.deps.Metrics.RecordRegistration()

	if err := s.deps.Mailer.SendVerification(ctx, reg.Email, reg.VerificationToken); err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "verification mail not sent", err)
	}

	resp := registerResponse{UserID: reg.UserID.String(), Email: reg.Email}
	if s.cfg.ExposeTokens {
		resp.VerificationToken = reg.VerificationToken
		resp.ExpiresAt = &reg.ExpiresAt
	}
	respond(c, http.StatusCreated, "registration successful, check your email to verify your account", resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}

	result, err := s.deps.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.deps.Metrics.RecordLogin(observability.LoginFailure)
		s.fail(c, err)
		return
	}
	s.deps.Metrics.RecordLogin(observability.LoginSuccess)

	respond(c, http.StatusOK, "login successful", gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"user":      viewUser(result.User),
	})
}

func (s *Server) handleVerifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// any malformed token is just an invalid token
		s.fail(c, oops.Code(auth.CodeInvalidToken).Errorf("invalid or expired verification token"))
		return
	}
	if err := s.deps.Auth.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "email verified successfully", nil)
}

// handleResendVerification always answers 202 so callers cannot probe
// which emails are registered.
func (s *Server) handleResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	token, err := s.deps.Auth.ResendVerification(ctx, req.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	data := gin.H{}
	if token != "" {
		if err := s.deps.Mailer.SendVerification(ctx, auth.NormalizeEmail(req.Email), token); err != nil {
			errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "verification mail not sent", err)
		}
		if s.cfg.ExposeTokens {
			data["verificationToken"] = token
		}
	}
	respond(c, http.StatusAccepted, "if the account exists and is unverified, a new verification email has been sent", data)
}

func (s *Server) handleForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	token, err := s.deps.Auth.RequestPasswordReset(ctx, req.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	// The reset token only ever leaves through the mailer, and the response
	// is the same whether or not the account exists.
	if token != "" {
		if err := s.deps.Mailer.SendPasswordReset(ctx, auth.NormalizeEmail(req.Email), token); err != nil {
			errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "password reset mail not sent", err)
		}
	}
	respond(c, http.StatusAccepted, "if the account exists, a password reset email has been sent", nil)
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}
	if err := s.deps.Auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "password has been reset", nil)
}

// handleSessionProfile returns the identity embedded in the session.
func (s *Server) handleSessionProfile(c *gin.Context) {
	claims := claimsFrom(c)
	id := claims.Identity()
	respond(c, http.StatusOK, "", gin.H{
		"id":        id.UserID.String(),
		"email":     id.Email,
		"firstName": id.FirstName,
		"lastName":  id.LastName,
		"expiresAt": claims.ExpiresAt(),
	})
}

// requireSession rejects requests without a valid bearer session and
// stores the verified claims for the handlers behind it.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			s.fail(c, oops.Code(auth.CodeSessionMissing).Errorf("authentication required"))
			return
		}
		claims, err := s.deps.Auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// claimsFrom returns the claims stored by requireSession. It must only be
// called behind that middleware.
func claimsFrom(c *gin.Context) *auth.Claims {
	return c.MustGet(claimsKey).(*auth.Claims) //nolint:forcetypeassert // set by requireSession
}

func isULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
