// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads Gatekeeper configuration.
//
// Sources, lowest precedence first: flag defaults, the YAML config file,
// explicitly set flags. DATABASE_URL fills database.url when no other
// source set it.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/gatekeeper/internal/access"
	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Hasher algorithms.
const (
	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

// DatabaseURLEnv names the environment variable consulted for database.url.
const DatabaseURLEnv = "DATABASE_URL"

// DefaultExcludedPaths are reachable without credentials.
var DefaultExcludedPaths = []string{
	"/api/v1/status/",
	"/api/v1/unauthorized/",
	"/api/v1/forbidden/",
	"/api/v1/auth_session/login/",
}

// Config is the effective Gatekeeper configuration.
type Config struct {
	HTTPAddr    string   `koanf:"http_addr" yaml:"http_addr" jsonschema:"description=API listen address"`
	MetricsAddr string   `koanf:"metrics_addr" yaml:"metrics_addr" jsonschema:"description=metrics and health address (empty disables)"`
	LogFormat   string   `koanf:"log_format" yaml:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel    string   `koanf:"log_level" yaml:"log_level" jsonschema:"description=debug or info or warn or error"`
	Database    Database `koanf:"database" yaml:"database"`
	Auth        Auth     `koanf:"auth" yaml:"auth"`
}

// Database configures the credential store.
type Database struct {
	// Driver is "postgres" or "sqlite". Empty infers it from URL.
	Driver string `koanf:"driver" yaml:"driver" jsonschema:"enum=postgres,enum=sqlite"`
	// URL is a postgres:// URL or a SQLite file path.
	URL            string        `koanf:"url" yaml:"url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" yaml:"connect_timeout"`
	ConnectRetries uint64        `koanf:"connect_retries" yaml:"connect_retries" jsonschema:"minimum=0"`
	AutoMigrate    bool          `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// Auth configures request authentication.
type Auth struct {
	// Type selects the gate strategy: "basic" or "session".
	Type          string   `koanf:"type" yaml:"type" jsonschema:"enum=basic,enum=session"`
	SessionCookie string   `koanf:"session_cookie" yaml:"session_cookie" jsonschema:"minLength=1"`
	CookieSecure  bool     `koanf:"cookie_secure" yaml:"cookie_secure"`
	Hasher        string   `koanf:"hasher" yaml:"hasher" jsonschema:"enum=argon2id,enum=bcrypt"`
	BcryptCost    int      `koanf:"bcrypt_cost" yaml:"bcrypt_cost" jsonschema:"minimum=0,maximum=31"`
	ExcludedPaths []string `koanf:"excluded_paths" yaml:"excluded_paths"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":        "http_addr",
	"metrics-addr":     "metrics_addr",
	"log-format":       "log_format",
	"log-level":        "log_level",
	"database-driver":  "database.driver",
	"database-url":     "database.url",
	"database-timeout": "database.connect_timeout",
	"database-retries": "database.connect_retries",
	"auto-migrate":     "database.auto_migrate",
	"auth-type":        "auth.type",
	"session-cookie":   "auth.session_cookie",
	"cookie-secure":    "auth.cookie_secure",
	"hasher":           "auth.hasher",
	"bcrypt-cost":      "auth.bcrypt_cost",
	"excluded-paths":   "auth.excluded_paths",
}

// RegisterFlags defines the configuration flags and their defaults on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: $XDG_CONFIG_HOME/gatekeeper/config.yaml if present)")
	fs.String("http-addr", "127.0.0.1:5000", "API listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("database-driver", "", "database driver (postgres or sqlite; default: inferred from url)")
	fs.String("database-url", "", "database URL or SQLite path (default: $DATABASE_URL)")
	fs.Duration("database-timeout", 5*time.Second, "timeout for each connection attempt")
	fs.Uint64("database-retries", 5, "connection retries at startup")
	fs.Bool("auto-migrate", false, "apply pending migrations at startup")
	fs.String("auth-type", access.StrategyBasic, "request authentication strategy (basic or session)")
	fs.String("session-cookie", access.DefaultSessionCookie, "session cookie name")
	fs.Bool("cookie-secure", false, "mark the session cookie Secure")
	fs.String("hasher", HasherArgon2id, "password hasher (argon2id or bcrypt)")
	fs.Int("bcrypt-cost", 0, "bcrypt cost (0 = library default)")
	fs.StringSlice("excluded-paths", DefaultExcludedPaths, "paths reachable without credentials")
}

// Load builds the configuration from flags (after parsing) and the config
// file. getenv supplies DATABASE_URL and the XDG variables; nil means
// os.Getenv.
func Load(flags *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	k := koanf.New(".")
	dirs := xdg.Resolve(getenv)

	path, explicit := configPath(flags, dirs)
	if explicit || Exists(path) {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
		if err := ValidateDocument(k.Raw()); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
	}

	// Defaults fill keys the file left unset; changed flags override.
	keyFor := func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, keyFor), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "flags").
			Wrap(err)
	}

	if k.String("database.url") == "" {
		if url := getenv(DatabaseURLEnv); url != "" {
			if err := k.Set("database.url", url); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", DatabaseURLEnv).Wrap(err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	cfg.applyDefaults(dirs)
	return &cfg, nil
}

// configPath returns the file to load and whether it was named explicitly.
func configPath(flags *pflag.FlagSet, dirs xdg.Dirs) (string, bool) {
	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true
	}
	return dirs.ConfigFile(), false
}

func (c *Config) applyDefaults(dirs xdg.Dirs) {
	if c.Database.Driver == "" {
		c.Database.Driver = inferDriver(c.Database.URL)
	}
	if c.Database.Driver == DriverSQLite && c.Database.URL == "" {
		c.Database.URL = dirs.DatabaseFile()
	}
}

func inferDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Validate rejects unknown enum values and empty required settings.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return invalid("http_addr", c.HTTPAddr, "http_addr is required")
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		return invalid("log_format", c.LogFormat, "log_format must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", c.LogLevel, "log_level must be debug, info, warn or error")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "", "database.url is required for postgres")
		}
	case DriverSQLite:
	default:
		return invalid("database.driver", c.Database.Driver, "database.driver must be 'postgres' or 'sqlite'")
	}
	switch c.Auth.Type {
	case access.StrategyBasic, access.StrategySession:
	default:
		return invalid("auth.type", c.Auth.Type, "auth.type must be 'basic' or 'session'")
	}
	if c.Auth.SessionCookie == "" {
		return invalid("auth.session_cookie", "", "auth.session_cookie is required")
	}
	switch c.Auth.Hasher {
	case HasherArgon2id, HasherBcrypt:
	default:
		return invalid("auth.hasher", c.Auth.Hasher, "auth.hasher must be 'argon2id' or 'bcrypt'")
	}
	return nil
}

func invalid(key, value, msg string) error {
	return oops.Code("CONFIG_INVALID").
		With("key", key).
		With("value", value).
		Errorf("%s", msg)
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
