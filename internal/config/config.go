// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package config loads bugreport settings from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
//
// Environment variables use the BUGREPORT_ prefix with a double underscore
// between section and key: BUGREPORT_AUTH__ACCESS_TTL sets auth.access_ttl.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/xdg"
)

// EnvPrefix is stripped from environment variable names.
const EnvPrefix = "BUGREPORT_"

// Redacted replaces secret values in Redacted output.
const Redacted = "[REDACTED]"

const delim = "."

// Config is the full set of runtime settings.
type Config struct {
	Log           LogConfig           `koanf:"log"`
	HTTP          HTTPConfig          `koanf:"http"`
	Observability ObservabilityConfig `koanf:"observability"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Mail          MailConfig          `koanf:"mail"`
	Storage       StorageConfig       `koanf:"storage"`

	k *koanf.Koanf
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig configures the metrics and health listener. An empty
// Addr disables it.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	// AutoMigrate applies pending migrations when serve starts.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// AuthConfig configures token issuance and password hashing.
type AuthConfig struct {
	Secret            string        `koanf:"secret"`
	Issuer            string        `koanf:"issuer"`
	AccessTTL         time.Duration `koanf:"access_ttl"`
	RefreshTTL        time.Duration `koanf:"refresh_ttl"`
	ResetWindow       time.Duration `koanf:"reset_window"`
	BcryptCost        int           `koanf:"bcrypt_cost"`
	RequireActivation bool          `koanf:"require_activation"`
	// SweepInterval is how often serve purges expired tokens. Zero disables it.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// MailConfig configures outbound mail.
type MailConfig struct {
	// Driver is "smtp" or "log".
	Driver      string        `koanf:"driver"`
	BaseURL     string        `koanf:"base_url"`
	From        string        `koanf:"from"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	TLS         string        `koanf:"tls"`
	QueueSize   int           `koanf:"queue_size"`
	Workers     int           `koanf:"workers"`
	SendTimeout time.Duration `koanf:"send_timeout"`
}

// StorageConfig configures the profile picture bucket. An empty Bucket
// disables picture uploads.
type StorageConfig struct {
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Endpoint  string `koanf:"endpoint"`
}

// Mail drivers.
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

func defaults() map[string]any {
	return map[string]any{
		"log.format": "json",
		"log.level":  "info",

		"http.addr":             ":8080",
		"http.read_timeout":     "15s",
		"http.write_timeout":    "15s",
		"http.shutdown_timeout": "10s",

		"observability.addr": "127.0.0.1:9100",

		"database.url":             "",
		"database.max_conns":       10,
		"database.connect_retries": 5,
		"database.auto_migrate":    true,

		"auth.secret":             "",
		"auth.issuer":             auth.DefaultIssuer,
		"auth.access_ttl":         auth.DefaultAccessTTL.String(),
		"auth.refresh_ttl":        auth.DefaultRefreshTTL.String(),
		"auth.reset_window":       auth.ResetTokenExpiry.String(),
		"auth.bcrypt_cost":        auth.DefaultBcryptCost,
		"auth.require_activation": false,
		"auth.sweep_interval":     "1h",

		"mail.driver":       MailDriverLog,
		"mail.base_url":     "http://localhost:3000",
		"mail.from":         "BugReport <no-reply@bugreport.local>",
		"mail.host":         "localhost",
		"mail.port":         587,
		"mail.username":     "",
		"mail.password":     "",
		"mail.tls":          "opportunistic",
		"mail.queue_size":   100,
		"mail.workers":      2,
		"mail.send_timeout": "30s",

		"storage.bucket":     "",
		"storage.region":     "us-east-1",
		"storage.access_key": "",
		"storage.secret_key": "",
		"storage.endpoint":   "",
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are ignored by Load.
var flagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"metrics-addr": "observability.addr",
	"database-url": "database.url",
}

// secretKeys are masked by Redacted.
var secretKeys = []string{"auth.secret", "mail.password", "storage.secret_key"}

// Options selects the sources Load reads.
type Options struct {
	// File is an explicit config path. It must exist. When empty the XDG
	// default is used if present.
	File string
	// EnvFile is a dotenv file loaded into the process environment before
	// reading it. Existing variables win. Defaults to ".env"; a missing
	// default file is ignored.
	EnvFile string
	// Flags are applied last. Only flags the user set are considered.
	Flags *pflag.FlagSet
}

// Load builds a Config from the layered sources. It does not validate.
func Load(opts Options) (*Config, error) {
	k := koanf.New(delim)

	if err := k.Load(confmap.Provider(defaults(), delim), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path := opts.File
	if path == "" {
		if p, ok := xdg.DefaultConfigFile(); ok {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, delim, envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, delim, k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := &Config{k: k}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return oops.Code("CONFIG_READ_FAILED").With("source", "dotenv").With("path", path).Wrap(err)
}

// envKey turns BUGREPORT_MAIL__BASE_URL into mail.base_url.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", delim)
}

// Redacted returns the effective settings as a nested map with secrets
// masked and the database password hidden.
func (c *Config) Redacted() map[string]any {
	if c.k == nil {
		return map[string]any{}
	}
	k := c.k.Copy()
	for _, key := range secretKeys {
		if k.String(key) != "" {
			_ = k.Set(key, Redacted) //nolint:errcheck // key exists
		}
	}
	if raw := k.String("database.url"); raw != "" {
		_ = k.Set("database.url", redactURL(raw)) //nolint:errcheck // key exists
	}
	return k.Raw()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redacted
	}
	return u.Redacted()
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "must be json or text, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Auth.AccessTTL <= 0 {
		return invalid("auth.access_ttl", "must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return invalid("auth.access_ttl", "must be shorter than auth.refresh_ttl (%s >= %s)",
			c.Auth.AccessTTL, c.Auth.RefreshTTL)
	}
	if c.Auth.ResetWindow <= 0 {
		return invalid("auth.reset_window", "must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return invalid("auth.bcrypt_cost", "must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	}
	if c.Auth.SweepInterval < 0 {
		return invalid("auth.sweep_interval", "must not be negative")
	}
	switch c.Mail.Driver {
	case MailDriverSMTP, MailDriverLog:
	default:
		return invalid("mail.driver", "must be smtp or log, got %q", c.Mail.Driver)
	}
	return nil
}

// ValidateDatabase additionally requires a database URL.
func (c *Config) ValidateDatabase() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return invalid("database.url", "is required (set %sDATABASE__URL or --database-url)", EnvPrefix)
	}
	return nil
}

// ValidateServe additionally checks what the API server needs.
func (c *Config) ValidateServe() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if len(c.Auth.Secret) < auth.MinSecretLength {
		return invalid("auth.secret", "must be at least %d bytes", auth.MinSecretLength)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if _, err := url.ParseRequestURI(c.Mail.BaseURL); err != nil {
		return invalid("mail.base_url", "must be an absolute URL")
	}
	if c.Mail.Driver == MailDriverSMTP && c.Mail.Host == "" {
		return invalid("mail.host", "is required for the smtp driver")
	}
	if c.Mail.QueueSize <= 0 || c.Mail.Workers <= 0 {
		return invalid("mail.queue_size", "queue size and workers must be positive")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(key+" "+format, args...)
}
