// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads warden settings from defaults, an optional YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read as settings, e.g.
// WARDEN_SESSION_DURATION=1h sets session.duration.
const EnvPrefix = "WARDEN_"

// Session variants.
const (
	SessionInline   = "inline"
	SessionMemory   = "memory"
	SessionPostgres = "postgres"
	SessionRedis    = "redis"
)

// Hasher algorithms.
const (
	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

// Config holds every warden setting.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Session  SessionConfig  `koanf:"session"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CookieName        string        `koanf:"cookie_name"`
	CookieSecure      bool          `koanf:"cookie_secure"`
	TokenHeader       string        `koanf:"token_header"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig selects PostgreSQL for users. An empty URL keeps users in
// memory.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
}

// RedisConfig configures the redis session variant.
type RedisConfig struct {
	URL       string `koanf:"url"`
	KeyPrefix string `koanf:"key_prefix"`
}

// SessionConfig selects the session registry.
type SessionConfig struct {
	Store string `koanf:"store"`
	// Duration accepts "30m" or whole seconds such as 1800. Zero or a
	// negative value never expires.
	Duration time.Duration `koanf:"duration"`
}

// HasherConfig selects and tunes the password hasher.
type HasherConfig struct {
	Algorithm     string `koanf:"algorithm"`
	BcryptCost    int    `koanf:"bcrypt_cost"`
	ArgonTime     uint32 `koanf:"argon_time"`
	ArgonMemory   uint32 `koanf:"argon_memory"`
	ArgonThreads  uint8  `koanf:"argon_threads"`
	MaxConcurrent int    `koanf:"max_concurrent"`
}

// AuthConfig configures the request policy.
type AuthConfig struct {
	ExcludedPaths []string `koanf:"excluded_paths"`
	AllowBasic    bool     `koanf:"allow_basic"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string   `koanf:"level"`
	Format string   `koanf:"format"`
	Redact []string `koanf:"redact"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CookieName:        "session_id",
			TokenHeader:       "X-Session-Token",
		},
		Metrics:  MetricsConfig{Addr: ":9100"},
		Database: DatabaseConfig{ConnectAttempts: 8},
		Redis:    RedisConfig{KeyPrefix: "warden:"},
		Session:  SessionConfig{Store: SessionInline},
		Hasher: HasherConfig{
			Algorithm:    HasherArgon2id,
			BcryptCost:   12,
			ArgonTime:    1,
			ArgonMemory:  64 * 1024,
			ArgonThreads: 4,
		},
		Auth: AuthConfig{
			ExcludedPaths: []string{"/", "/api/v1/status/", "/users/", "/sessions/", "/reset_password/"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Redact: []string{"name", "email", "phone", "ssn", "password"},
		},
	}
}

// defaultMap mirrors Default as a flat koanf map.
func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"http.addr":                 d.HTTP.Addr,
		"http.read_header_timeout":  d.HTTP.ReadHeaderTimeout,
		"http.shutdown_timeout":     d.HTTP.ShutdownTimeout,
		"http.cookie_name":          d.HTTP.CookieName,
		"http.cookie_secure":        d.HTTP.CookieSecure,
		"http.token_header":         d.HTTP.TokenHeader,
		"metrics.addr":              d.Metrics.Addr,
		"database.url":              d.Database.URL,
		"database.connect_attempts": d.Database.ConnectAttempts,
		"database.auto_migrate":     d.Database.AutoMigrate,
		"redis.url":                 d.Redis.URL,
		"redis.key_prefix":          d.Redis.KeyPrefix,
		"session.store":             d.Session.Store,
		"session.duration":          d.Session.Duration,
		"hasher.algorithm":          d.Hasher.Algorithm,
		"hasher.bcrypt_cost":        d.Hasher.BcryptCost,
		"hasher.argon_time":         d.Hasher.ArgonTime,
		"hasher.argon_memory":       d.Hasher.ArgonMemory,
		"hasher.argon_threads":      d.Hasher.ArgonThreads,
		"hasher.max_concurrent":     d.Hasher.MaxConcurrent,
		"auth.excluded_paths":       d.Auth.ExcludedPaths,
		"auth.allow_basic":          d.Auth.AllowBasic,
		"log.level":                 d.Log.Level,
		"log.format":                d.Log.Format,
		"log.redact":                d.Log.Redact,
	}
}

// LoadOptions name the sources Load reads besides defaults and the
// environment.
type LoadOptions struct {
	// File is an optional YAML file. It must exist when set.
	File string
	// DotEnv is an optional .env file loaded into the environment before
	// it is read. A missing file is ignored. Variables already set win.
	DotEnv string
	// Flags are applied last; only flags the user changed count.
	// Flag names use '-' between section and field, e.g. session-duration.
	Flags *pflag.FlagSet
}

// Load assembles and validates a Config.
func Load(opts LoadOptions) (*Config, error) {
	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_DOTENV_FAILED").With("path", opts.DotEnv).Wrap(err)
		}
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", opts.File).
				Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	// Conventional URL variables used by hosting platforms.
	urls := map[string]any{}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		urls["database.url"] = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		urls["redis.url"] = v
	}
	if len(urls) > 0 {
		if err := k.Load(confmap.Provider(urls, "."), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithValue(opts.Flags, ".", nil, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{DecoderConfig: decoderConfig()}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decoderConfig is koanf's default decoder with bare numbers accepted as
// seconds for durations.
func decoderConfig() *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc()),
		WeaklyTypedInput: true,
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHookFunc decodes integers, and strings holding only an
// integer, into a time.Duration of that many seconds. Anything else is left
// for the time.ParseDuration hook.
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return data, nil //nolint:nilerr // not a bare number; parsed as a duration next
			}
			return time.Duration(n) * time.Second, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case uint64:
			return time.Duration(v) * time.Second, nil //nolint:gosec // config-sized values
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		}
		return data, nil
	}
}

// envKey maps WARDEN_SECTION_FIELD_NAME to section.field_name. Empty
// variables are skipped. List settings are comma separated.
func envKey(key, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, field, ok := strings.Cut(name, "_")
	if !ok || field == "" {
		return "", nil
	}
	k := section + "." + field
	if slices.Contains(listKeys, k) {
		return k, splitList(value)
	}
	return k, value
}

// flagKey maps section-field to section.field, e.g. session-duration.
func flagKey(key, value string) (string, any) {
	section, field, ok := strings.Cut(key, "-")
	if !ok {
		return "", nil
	}
	k := section + "." + strings.ReplaceAll(field, "-", "_")
	if slices.Contains(listKeys, k) {
		return k, splitList(strings.Trim(value, "[]"))
	}
	return k, value
}

var listKeys = []string{"auth.excluded_paths", "log.redact"}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings that cannot produce a working server.
func (c *Config) Validate() error {
	switch c.Session.Store {
	case SessionInline, SessionMemory:
	case SessionPostgres:
		if c.Database.URL == "" {
			return invalid("session.store", c.Session.Store, "postgres sessions need database.url")
		}
	case SessionRedis:
		if c.Redis.URL == "" {
			return invalid("session.store", c.Session.Store, "redis sessions need redis.url")
		}
	default:
		return invalid("session.store", c.Session.Store, "must be inline, memory, postgres or redis")
	}

	switch c.Hasher.Algorithm {
	case HasherArgon2id, HasherBcrypt:
	default:
		return invalid("hasher.algorithm", c.Hasher.Algorithm, "must be argon2id or bcrypt")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", c.Log.Format, "must be json or text")
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "cannot be empty")
	}
	if c.HTTP.CookieName == "" {
		return invalid("http.cookie_name", c.HTTP.CookieName, "cannot be empty")
	}
	return nil
}

// UsesPostgres reports whether users live in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Database.URL != ""
}

func invalid(key, value, reason string) error {
	return oops.Code("CONFIG_INVALID").
		With("key", key).
		With("value", value).
		Errorf("invalid %s %q: %s", key, value, reason)
}

// BindFlags registers the command-line overrides Load understands.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("database-url", "", "PostgreSQL URL for users and stored sessions")
	fs.String("redis-url", "", "Redis URL for the redis session store")
	fs.String("session-store", d.Session.Store, "session registry: inline, memory, postgres or redis")
	fs.String("session-duration", d.Session.Duration.String(), "session lifetime as a duration or whole seconds (<= 0 never expires)")
	fs.String("hasher-algorithm", d.Hasher.Algorithm, "password hasher: argon2id or bcrypt")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "log format: json or text")
}
