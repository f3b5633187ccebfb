// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/skycast/skycast/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const tracerName = "github.com/skycast/skycast/internal/httpapi"

// recovery turns panics into a 500 envelope.
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		abortWithError(c, logger, oops.Code(CodeInternal).
			With("panic", recovered).
			Errorf("panic while handling request"))
	})
}

// requestID reuses a well-formed client request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// tracing starts a server span per request.
func tracing() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+routeOf(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("url.path", c.Request.URL.Path),
			))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// accessLog writes one line per request.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", routeOf(c),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}
		logger.Log(c.Request.Context(), level, "http request", attrs...)
	}
}

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method, route, status string, elapsed time.Duration)
}

func metrics(obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obs.ObserveRequest(c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// routeOf returns the matched route pattern, keeping label cardinality
// bounded for unmatched paths.
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// corsPolicy allows the configured origins. Entries may be glob patterns
// such as https://*.skycast.app; "*" allows any origin without
// credentials.
func corsPolicy(origins []string) (gin.HandlerFunc, error) {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Version", RequestIDHeader},
		ExposeHeaders:    []string{RequestIDHeader, VersionHeader, CurrentVersionHeader, SupportedVersionsHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	var patterns []glob.Glob
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			patterns = nil
			break
		}
		g, err := glob.Compile(origin)
		if err != nil {
			return nil, oops.Code(CodeInvalidOrigin).With("origin", origin).Wrap(err)
		}
		patterns = append(patterns, g)
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOriginFunc = func(origin string) bool {
			for _, g := range patterns {
				if g.Match(origin) {
					return true
				}
			}
			return false
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.Code(CodeInvalidOrigin).Wrap(err)
	}
	return cors.New(cfg), nil
}

// CodeInvalidOrigin reports a malformed CORS origin pattern.
const CodeInvalidOrigin = "HTTP_INVALID_ORIGIN"

// CodeInvalidProxy reports a trusted proxy entry that is neither an IP nor
// a CIDR.
const CodeInvalidProxy = "HTTP_INVALID_PROXY"

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu      sync.Mutex
	perIP   map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		perIP:   map[string]*limiterEntry{},
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.perIP[ip]
	if !ok {
		if len(l.perIP) > 10_000 {
			l.sweep(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.perIP[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops buckets idle long enough to have refilled. Callers hold mu.
func (l *ipLimiter) sweep(now time.Time) {
	for ip, entry := range l.perIP {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.perIP, ip)
		}
	}
}

func rateLimit(l *ipLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			abortWithError(c, logger, oops.Code(CodeRateLimited).
				With("client_ip", c.ClientIP()).
				Errorf("too many requests, please try again later"))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
