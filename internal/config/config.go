// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package config defines the skycast server configuration and loads it from
// defaults, an optional YAML file, the environment and command-line flags.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/auth"
)

// CodeInvalid is returned for configuration values other than the signing
// secret. A missing secret is reported with auth.CodeConfigInvalid.
const CodeInvalid = "CONFIG_INVALID"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server" json:"server,omitempty"`
	Storage StorageConfig `koanf:"storage" json:"storage,omitempty"`
	Auth    AuthConfig    `koanf:"auth" json:"auth,omitempty"`
	Weather WeatherConfig `koanf:"weather" json:"weather,omitempty"`
	Mail    MailConfig    `koanf:"mail" json:"mail,omitempty"`
	Log     LogConfig     `koanf:"log" json:"log,omitempty"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr            string        `koanf:"addr" json:"addr,omitempty" jsonschema:"description=API listen address"`
	MetricsAddr     string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=metrics and health listen address; empty disables it"`
	CORSOrigins     []string      `koanf:"cors_origins" json:"cors_origins,omitempty" jsonschema:"description=allowed origins; glob patterns such as https://*.skycast.app are accepted"`
	RateLimit       int           `koanf:"rate_limit" json:"rate_limit,omitempty" jsonschema:"minimum=0,description=requests per minute per client IP; 0 disables limiting"`
	TrustedProxies  []string      `koanf:"trusted_proxies" json:"trusted_proxies,omitempty" jsonschema:"description=proxy IPs or CIDRs whose X-Forwarded-For is honored; empty trusts none"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" jsonschema:"type=string,description=graceful shutdown deadline such as 15s"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver        string `koanf:"driver" json:"driver,omitempty" jsonschema:"enum=postgres,enum=mongo"`
	DatabaseURL   string `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
	MongoURI      string `koanf:"mongo_uri" json:"mongo_uri,omitempty"`
	MongoDatabase string `koanf:"mongo_database" json:"mongo_database,omitempty"`
}

// AuthConfig configures sessions and account tokens.
type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret" json:"jwt_secret,omitempty"`
	SessionTTL      time.Duration `koanf:"session_ttl" json:"session_ttl,omitempty" jsonschema:"type=string"`
	Issuer          string        `koanf:"issuer" json:"issuer,omitempty"`
	VerificationTTL time.Duration `koanf:"verification_ttl" json:"verification_ttl,omitempty" jsonschema:"type=string"`
	ResetTTL        time.Duration `koanf:"reset_ttl" json:"reset_ttl,omitempty" jsonschema:"type=string"`
	HashWorkers     int           `koanf:"hash_workers" json:"hash_workers,omitempty" jsonschema:"minimum=0,description=concurrent password hash operations; 0 uses GOMAXPROCS"`
}

// WeatherConfig configures the OpenWeather client.
type WeatherConfig struct {
	APIURL  string        `koanf:"api_url" json:"api_url,omitempty"`
	APIKey  string        `koanf:"api_key" json:"api_key,omitempty"`
	Timeout time.Duration `koanf:"timeout" json:"timeout,omitempty" jsonschema:"type=string"`
}

// MailConfig configures token delivery.
type MailConfig struct {
	Provider  string `koanf:"provider" json:"provider,omitempty" jsonschema:"enum=log,enum=resend"`
	APIKey    string `koanf:"api_key" json:"api_key,omitempty"`
	From      string `koanf:"from" json:"from,omitempty"`
	PublicURL string `koanf:"public_url" json:"public_url,omitempty" jsonschema:"description=web frontend base URL used in mailed links"`
	// ExposeTokens returns verification tokens in API responses. Development
	// only; it requires the log provider.
	ExposeTokens bool `koanf:"expose_tokens" json:"expose_tokens,omitempty" jsonschema:"description=development only: echo verification tokens in responses; requires the log provider"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the compiled-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			MetricsAddr:     "127.0.0.1:9100",
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       100,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Driver:        DriverPostgres,
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "skycast",
		},
		Auth: AuthConfig{
			SessionTTL:      auth.DefaultSessionTTL,
			Issuer:          "skycast",
			VerificationTTL: auth.VerificationTokenTTL,
			ResetTTL:        auth.ResetTokenTTL,
		},
		Weather: WeatherConfig{
			APIURL:  "https://api.openweathermap.org",
			Timeout: 10 * time.Second,
		},
		Mail: MailConfig{
			Provider:  "resend",
			From:      "Skycast <noreply@skycast.app>",
			PublicURL: "http://localhost:3000",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// Validate checks the configuration. An empty signing secret is fatal: the
// server must not serve any route without one.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return oops.Code(auth.CodeConfigInvalid).Errorf("auth.jwt_secret is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return invalid("auth.session_ttl", c.Auth.SessionTTL, "must be positive")
	}
	if c.Auth.VerificationTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return invalid("auth.verification_ttl", c.Auth.VerificationTTL, "token lifetimes must be positive")
	}
	if c.Auth.HashWorkers < 0 {
		return invalid("auth.hash_workers", c.Auth.HashWorkers, "must not be negative")
	}
	if c.Server.Addr == "" {
		return invalid("server.addr", c.Server.Addr, "is required")
	}
	if c.Server.RateLimit < 0 {
		return invalid("server.rate_limit", c.Server.RateLimit, "must not be negative")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return invalid("storage.database_url", "", "is required for the postgres driver")
		}
	case DriverMongo:
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			return invalid("storage.mongo_uri", c.Storage.MongoURI, "uri and database are required for the mongo driver")
		}
	default:
		return invalid("storage.driver", c.Storage.Driver, "must be postgres or mongo")
	}

	if !absoluteURL(c.Weather.APIURL) {
		return invalid("weather.api_url", c.Weather.APIURL, "must be an absolute URL")
	}
	if c.Weather.APIKey == "" {
		return invalid("weather.api_key", "", "is required")
	}

	switch c.Mail.Provider {
	case "log":
	case "resend":
		if c.Mail.APIKey == "" {
			return invalid("mail.api_key", "", "is required for the resend provider")
		}
		if c.Mail.ExposeTokens {
			return invalid("mail.expose_tokens", true, "is only allowed with the log provider")
		}
	default:
		return invalid("mail.provider", c.Mail.Provider, "must be log or resend")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "must be json or text")
	}
	return nil
}

func invalid(key string, value any, reason string) error {
	return oops.Code(CodeInvalid).With("key", key).With("value", value).Errorf("%s %s", key, reason)
}

func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
