// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package httpapi is the REST surface of skycast: routing, middleware,
// request validation, the session guard and the mapping of error codes to
// HTTP statuses.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/account"
	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/history"
	"github.com/skycast/skycast/internal/mail"
	"github.com/skycast/skycast/internal/weather"
)

// AuthService is the account authentication API used by the handlers.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Registration, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// AccountService manages profiles.
type AccountService interface {
	Profile(ctx context.Context, userID ulid.ULID) (*auth.User, error)
	UpdateProfile(ctx context.Context, userID ulid.ULID, upd account.ProfileUpdate) (*auth.User, error)
	UpdatePreferences(ctx context.Context, userID ulid.ULID, patch account.PreferencesPatch) (*auth.Preferences, error)
	Delete(ctx context.Context, userID ulid.ULID) error
}

// WeatherService fetches weather data.
type WeatherService interface {
	Current(ctx context.Context, city string) (*weather.Current, error)
	Forecast(ctx context.Context, city string) (*weather.Forecast, error)
	AirQuality(ctx context.Context, lat, lon float64) (*weather.AirQuality, error)
	Ping(ctx context.Context) error
}

// HistoryService stores search history.
type HistoryService interface {
	Record(ctx context.Context, userID ulid.ULID, query string, loc history.Location)
	List(ctx context.Context, userID ulid.ULID, limit int) ([]history.Entry, error)
	Delete(ctx context.Context, userID, id ulid.ULID) error
	Clear(ctx context.Context, userID ulid.ULID) (int64, error)
}

// Metrics records application events.
type Metrics interface {
	RequestObserver
	RecordRegistration()
	RecordLogin(status string)
}

// Deps are the collaborators behind the routes. All are required.
type Deps struct {
	Auth     AuthService
	Accounts AccountService
	Weather  WeatherService
	History  HistoryService
	Mailer   mail.Notifier
	Metrics  Metrics
	Logger   *slog.Logger
}

// Config tunes the HTTP surface.
type Config struct {
	Addr string
	// CORSOrigins lists allowed origins; glob patterns are accepted.
	CORSOrigins []string
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are honored. Empty means the socket peer is the client.
	TrustedProxies []string
	// ExposeTokens returns verification tokens in responses. Development
	// only. Reset tokens are never returned.
	ExposeTokens bool
}

// Server is the API HTTP server.
type Server struct {
	deps     Deps
	cfg      Config
	logger   *slog.Logger
	engine   *gin.Engine
	listener net.Listener
	http     *http.Server
	running  atomic.Bool
}

// New builds the router.
func New(deps Deps, cfg Config) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Accounts == nil:
		return nil, oops.Errorf("account service is required")
	case deps.Weather == nil:
		return nil, oops.Errorf("weather service is required")
	case deps.History == nil:
		return nil, oops.Errorf("history service is required")
	case deps.Mailer == nil:
		return nil, oops.Errorf("mail notifier is required")
	case deps.Metrics == nil:
		return nil, oops.Errorf("metrics are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if err := registerValidators(); err != nil {
		return nil, oops.Wrapf(err, "register validators")
	}

	s := &Server{deps: deps, cfg: cfg, logger: deps.Logger}
	engine, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() (*gin.Engine, error) {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		return nil, oops.Code(CodeInvalidProxy).
			With("trusted_proxies", s.cfg.TrustedProxies).
			Wrapf(err, "set trusted proxies")
	}

	cors, err := corsPolicy(s.cfg.CORSOrigins)
	if err != nil {
		return nil, err
	}
	engine.Use(
		recovery(s.logger),
		requestID(),
		tracing(),
		accessLog(s.logger),
		metrics(s.deps.Metrics),
		securityHeaders(),
		cors,
	)
	if s.cfg.RateLimit > 0 {
		engine.Use(rateLimit(newIPLimiter(s.cfg.RateLimit), s.logger))
	}

	engine.NoRoute(func(c *gin.Context) {
		s.fail(c, oops.Code(CodeRouteNotFound).
			With("path", c.Request.URL.Path).
			Errorf("%s %s does not exist", c.Request.Method, c.Request.URL.Path))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, errorEnvelope{Error: errorBody{
			Code:    "METHOD_NOT_ALLOWED",
			Message: c.Request.Method + " is not allowed on " + c.Request.URL.Path,
		}})
	})

	engine.GET("/api/versions", s.handleVersions)

	v1 := apiVersions[0]
	s.mount(engine.Group("/api/v1", s.versioned(v1)), v1)
	// legacy unversioned alias
	s.mount(engine.Group("/api", s.versioned(v1)), v1)

	return engine, nil
}

func (s *Server) mount(api *gin.RouterGroup, v *APIVersion) {
	api.GET("", s.versionInfo(v))

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/verify-email", s.handleVerifyEmail)
	authGroup.POST("/resend-verification", s.handleResendVerification)
	authGroup.POST("/forgot-password", s.handleForgotPassword)
	authGroup.POST("/reset-password", s.handleResetPassword)
	authGroup.GET("/profile", s.requireSession(), s.handleSessionProfile)

	profile := api.Group("/profile", s.requireSession())
	profile.GET("", s.handleGetProfile)
	profile.PUT("", s.handleUpdateProfile)
	profile.PATCH("/preferences", s.handleUpdatePreferences)
	profile.DELETE("", s.handleDeleteAccount)

	api.GET("/weather/health", s.handleWeatherHealth)
	w := api.Group("/weather", s.requireSession())
	w.GET("/current", s.handleCurrentWeather)
	w.GET("/forecast", s.handleForecast)
	w.GET("/air-quality", s.handleAirQuality)
	w.GET("/history", s.handleListHistory)
	w.DELETE("/history/:id", s.handleDeleteHistory)
	w.DELETE("/history", s.handleClearHistory)
}

// fail writes err as an error envelope.
func (s *Server) fail(c *gin.Context, err error) {
	abortWithError(c, s.logger, err)
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve error, if any, and is closed when
// the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.http = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
