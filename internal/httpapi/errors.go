// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/history"
	"github.com/skycast/skycast/internal/weather"
	"github.com/skycast/skycast/pkg/errutil"
)

// Codes raised by the HTTP layer itself.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeVersionUnsupported = "API_VERSION_UNSUPPORTED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeRouteNotFound      = "ROUTE_NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// statusByCode maps error codes to HTTP statuses. Unknown codes are 500.
var statusByCode = map[string]int{
	CodeValidation:         http.StatusBadRequest,
	CodeVersionUnsupported: http.StatusBadRequest,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeRouteNotFound:      http.StatusNotFound,

	auth.CodeInvalidEmail:       http.StatusBadRequest,
	auth.CodeWeakPassword:       http.StatusBadRequest,
	auth.CodePasswordEncoding:   http.StatusBadRequest,
	auth.CodeInvalidName:        http.StatusBadRequest,
	auth.CodeInvalidToken:       http.StatusBadRequest,
	auth.CodeEmailTaken:         http.StatusConflict,
	auth.CodeInvalidCredentials: http.StatusUnauthorized,
	auth.CodeUnverified:         http.StatusUnauthorized,
	auth.CodeAccountLocked:      http.StatusTooManyRequests,

	auth.CodeSessionMissing:          http.StatusUnauthorized,
	auth.CodeSessionExpired:          http.StatusUnauthorized,
	auth.CodeSessionSignatureInvalid: http.StatusUnauthorized,
	auth.CodeSessionMalformed:        http.StatusUnauthorized,

	auth.CodeUserNotFound:       http.StatusNotFound,
	auth.CodeInvalidPreferences: http.StatusBadRequest,
	history.CodeNotFound:        http.StatusNotFound,
	weather.CodeCityNotFound:    http.StatusNotFound,
	weather.CodeNoData:          http.StatusNotFound,
}

// publicMessages replaces error messages that must not leak detail.
var publicMessages = map[string]string{
	auth.CodeSessionMissing:          "authentication required",
	auth.CodeSessionExpired:          "session expired",
	auth.CodeSessionSignatureInvalid: "invalid session",
	auth.CodeSessionMalformed:        "invalid session",
	weather.CodeUpstreamAuth:         "weather service unavailable",
	weather.CodeUpstreamFailed:       "weather service unavailable",
}

type errorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []fieldReason `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type fieldReason struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type successEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, successEnvelope{Success: true, Message: message, Data: data})
}

// statusFor returns the HTTP status for err's code.
func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// abortWithError writes the error envelope for err and stops the chain.
// Server-side failures are logged with their context and reported with a
// generic message.
func abortWithError(c *gin.Context, logger *slog.Logger, err error) {
	code := errutil.Code(err)
	status := statusFor(code)

	body := errorBody{Code: code, Message: "internal server error"}
	switch {
	case status >= http.StatusInternalServerError:
		if code == "" {
			body.Code = CodeInternal
		}
		if msg, ok := publicMessages[code]; ok {
			body.Message = msg
		}
		errutil.LogErrorContext(c.Request.Context(), logger, slog.LevelError, "request failed", err)
	default:
		body.Message = publicMessage(code, err)
		errutil.LogErrorContext(c.Request.Context(), logger, slog.LevelDebug, "request rejected", err)
	}

	_ = c.Error(err) //nolint:errcheck // recorded for the access log
	c.AbortWithStatusJSON(status, errorEnvelope{Error: body})
}

func publicMessage(code string, err error) string {
	if msg, ok := publicMessages[code]; ok {
		return msg
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Error()
	}
	return err.Error()
}

// abortValidation reports a request binding failure.
func abortValidation(c *gin.Context, err error) {
	body := errorBody{Code: CodeValidation, Message: "request validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			body.Details = append(body.Details, fieldReason{Field: jsonFieldName(fe), Reason: validationReason(fe)})
		}
	} else {
		body.Details = []fieldReason{{Field: "body", Reason: "malformed request body"}}
	}
	_ = c.Error(err) //nolint:errcheck // recorded for the access log
	c.AbortWithStatusJSON(http.StatusBadRequest, errorEnvelope{Error: body})
}
