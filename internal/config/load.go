// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment variables mapped onto configuration keys:
// SKYCAST_AUTH_JWT_SECRET sets auth.jwt_secret.
const EnvPrefix = "SKYCAST_"

// legacyEnv maps the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"PORT":                "server.addr",
	"DATABASE_URL":        "storage.database_url",
	"MONGODB_URI":         "storage.mongo_uri",
	"MONGODB_DB_NAME":     "storage.mongo_database",
	"JWT_SECRET":          "auth.jwt_secret",
	"OPENWEATHER_API_KEY": "weather.api_key",
	"OPENWEATHER_API_URL": "weather.api_url",
	"RESEND_API_KEY":      "mail.api_key",
	"LOG_LEVEL":           "log.level",
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"metrics-addr":   "server.metrics_addr",
	"storage-driver": "storage.driver",
	"database-url":   "storage.database_url",
	"log-format":     "log.format",
	"log-level":      "log.level",
}

// RegisterFlags adds the configuration flags to fs. Flags left unset do not
// override values from the file or environment.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("addr", def.Server.Addr, "API listen address")
	fs.String("metrics-addr", def.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("storage-driver", def.Storage.Driver, "storage driver (postgres or mongo)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-format", def.Log.Format, "log format (json or text)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
}

type loader struct {
	dotEnv  string
	environ func() []string
}

// LoadOption configures Load.
type LoadOption func(*loader)

// WithDotEnv reads additional variables from the given .env file. Variables
// already present in the environment win. A missing file is ignored.
func WithDotEnv(path string) LoadOption {
	return func(l *loader) { l.dotEnv = path }
}

// WithEnviron replaces os.Environ as the environment source.
func WithEnviron(environ func() []string) LoadOption {
	return func(l *loader) { l.environ = environ }
}

// Load builds the configuration. Sources in increasing precedence: defaults,
// the YAML file at path (optional, "" skips it), .env, the environment, and
// flags that were explicitly set. The result is not validated.
func Load(path string, flags *pflag.FlagSet, opts ...LoadOption) (*Config, error) {
	l := &loader{dotEnv: ".env", environ: os.Environ}
	for _, opt := range opts {
		opt(l)
	}

	k := koanf.New(".")
	if err := setDefaults(k); err != nil {
		return nil, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "load config file")
		}
	}

	env, err := l.readEnv()
	if err != nil {
		return nil, err
	}
	if err := applyEnv(k, env); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(name, value string) (string, any) {
			return flagKeys[name], value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalid).Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode config")
	}
	return &cfg, nil
}

// setDefaults flattens Default() into k.
func setDefaults(k *koanf.Koanf) error {
	def := Default()
	for key, val := range flatten("", reflect.ValueOf(def)) {
		if err := k.Set(key, val); err != nil {
			return oops.Code(CodeInvalid).With("key", key).Wrapf(err, "set default")
		}
	}
	return nil
}

func flatten(prefix string, v reflect.Value) map[string]any {
	out := map[string]any{}
	t := v.Type()
	for i := range t.NumField() {
		key := t.Field(i).Tag.Get("koanf")
		if prefix != "" {
			key = prefix + "." + key
		}
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			for k, val := range flatten(key, f) {
				out[k] = val
			}
			continue
		}
		out[key] = f.Interface()
	}
	return out
}

// readEnv merges the .env file under the process environment.
func (l *loader) readEnv() (map[string]string, error) {
	env := map[string]string{}
	if l.dotEnv != "" {
		dot, err := godotenv.Read(l.dotEnv)
		switch {
		case err == nil:
			for k, v := range dot {
				env[k] = v
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, oops.Code(CodeInvalid).With("path", l.dotEnv).Wrapf(err, "read .env")
		}
	}
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok {
			env[name] = value
		}
	}
	return env, nil
}

// applyEnv sets legacy variables first so prefixed ones take precedence.
func applyEnv(k *koanf.Koanf, env map[string]string) error {
	for name, key := range legacyEnv {
		value, ok := env[name]
		if !ok || value == "" {
			continue
		}
		if name == "PORT" && !strings.Contains(value, ":") {
			value = ":" + value
		}
		if err := setEnv(k, key, value); err != nil {
			return err
		}
		// a Resend key means mail goes out through Resend
		if name == "RESEND_API_KEY" {
			if err := setEnv(k, "mail.provider", "resend"); err != nil {
				return err
			}
		}
	}
	for name, value := range env {
		key, ok := envKey(name)
		if !ok || !k.Exists(key) {
			continue
		}
		if err := setEnv(k, key, value); err != nil {
			return err
		}
	}
	return nil
}

func setEnv(k *koanf.Koanf, key, value string) error {
	var val any = value
	if key == "server.cors_origins" || key == "server.trusted_proxies" {
		val = splitList(value)
	}
	if err := k.Set(key, val); err != nil {
		return oops.Code(CodeInvalid).With("key", key).Wrapf(err, "apply environment")
	}
	return nil
}

// envKey maps SKYCAST_SECTION_SOME_FIELD to section.some_field.
func envKey(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix)
	if !ok {
		return "", false
	}
	section, field, ok := strings.Cut(strings.ToLower(rest), "_")
	if !ok || field == "" {
		return "", false
	}
	return section + "." + field, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
