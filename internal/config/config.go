// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package config loads Turnia's configuration from defaults, an optional
// YAML file, TURNIA_ environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"net"
	"time"

	"github.com/samber/oops"

	"github.com/turnia/turnia/internal/auth"
	"github.com/turnia/turnia/internal/retry"
	"github.com/turnia/turnia/internal/store"
	"github.com/turnia/turnia/internal/token"
)

// Environment names. Production raises the connection ceiling and refuses
// to start without explicit secrets.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the complete runtime configuration.
type Config struct {
	Env      string         `koanf:"env" jsonschema:"enum=development,enum=production,enum=test,default=development"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Sweeper  SweeperConfig  `koanf:"sweeper"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// LogConfig selects verbosity and encoding.
type LogConfig struct {
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `koanf:"format" jsonschema:"enum=json,enum=text,default=json"`
}

// DatabaseConfig configures the pool, isolation level and retry policy.
type DatabaseConfig struct {
	URL              string        `koanf:"url" jsonschema:"description=PostgreSQL connection URL; DATABASE_URL is used when empty"`
	MaxConns         int32         `koanf:"max_conns" jsonschema:"minimum=0"`
	MinConns         int32         `koanf:"min_conns" jsonschema:"minimum=0"`
	MaxConnIdleTime  time.Duration `koanf:"max_conn_idle_time"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
	Isolation        string        `koanf:"isolation" jsonschema:"enum=read_committed,enum=repeatable_read,enum=serializable"`
	Retry            RetryConfig   `koanf:"retry"`
}

// RetryConfig bounds retries of serialization failures and deadlocks.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" jsonschema:"minimum=1,maximum=10"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

// AuthConfig configures tokens, hashing and lockout.
type AuthConfig struct {
	AccessSecret        string             `koanf:"access_secret" jsonschema:"minLength=32"`
	RefreshSecret       string             `koanf:"refresh_secret" jsonschema:"minLength=32"`
	AccessTTL           time.Duration      `koanf:"access_ttl"`
	RefreshTTL          time.Duration      `koanf:"refresh_ttl"`
	ResetTTL            time.Duration      `koanf:"reset_ttl"`
	Issuer              string             `koanf:"issuer"`
	Audience            string             `koanf:"audience"`
	Leeway              time.Duration      `koanf:"leeway"`
	StrictSessions      bool               `koanf:"strict_sessions"`
	ForgotPasswordFloor time.Duration      `koanf:"forgot_password_floor"`
	Argon2              Argon2Config       `koanf:"argon2"`
	Lockout             LockoutConfig      `koanf:"lockout"`
	Registration        RegistrationConfig `koanf:"registration"`
}

// Argon2Config is the password hashing cost.
type Argon2Config struct {
	Time      uint32 `koanf:"time" jsonschema:"minimum=1"`
	MemoryKiB uint32 `koanf:"memory_kib" jsonschema:"minimum=8192"`
	Threads   uint8  `koanf:"threads" jsonschema:"minimum=1"`
}

// LockoutConfig locks an account after repeated failures. A zero threshold
// disables lockout.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold" jsonschema:"minimum=0"`
	Duration  time.Duration `koanf:"duration"`
}

// RegistrationConfig limits self-registration.
type RegistrationConfig struct {
	AllowedEmailDomains []string `koanf:"allowed_email_domains" jsonschema:"description=Glob patterns such as *.example.com; empty allows all"`
}

// SweeperConfig schedules cleanup of expired rows.
type SweeperConfig struct {
	Interval       time.Duration `koanf:"interval"`
	Retention      time.Duration `koanf:"retention"`
	AuditRetention time.Duration `koanf:"audit_retention"`
}

// MetricsConfig configures the observability listener. Empty disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	sweeper := auth.DefaultSweeperConfig()
	return Config{
		Env: EnvDevelopment,
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MinConns:         store.DefaultMinConns,
			MaxConnIdleTime:  store.DefaultMaxConnIdleTime,
			ConnectTimeout:   store.DefaultConnectTimeout,
			StatementTimeout: store.DefaultStatementTimeout,
			Isolation:        "read_committed",
			Retry: RetryConfig{
				MaxAttempts: retry.DefaultMaxAttempts,
				BaseDelay:   retry.DefaultBaseDelay,
				MaxDelay:    retry.DefaultMaxDelay,
			},
		},
		Auth: AuthConfig{
			AccessTTL:           token.DefaultAccessTTL,
			RefreshTTL:          token.DefaultRefreshTTL,
			ResetTTL:            auth.DefaultResetTokenTTL,
			Issuer:              "turnia",
			Audience:            "turnia-api",
			Leeway:              30 * time.Second,
			ForgotPasswordFloor: 300 * time.Millisecond,
			Argon2: Argon2Config{
				Time:      argon.Time,
				MemoryKiB: argon.MemoryKiB,
				Threads:   argon.Threads,
			},
			Lockout: LockoutConfig{
				Threshold: auth.DefaultLockoutThreshold,
				Duration:  auth.DefaultLockoutDuration,
			},
		},
		Sweeper: SweeperConfig{
			Interval:       sweeper.Interval,
			Retention:      sweeper.Retention,
			AuditRetention: sweeper.AuditRetention,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
	}
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// Validate checks the settings every command depends on. Secrets are checked
// separately by ValidateSecrets since only serving needs them.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return invalid("env", "must be development, production or test")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be debug, info, warn or error")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}

	db := c.Database
	if db.MaxConns < 0 || db.MinConns < 0 {
		return invalid("database.max_conns", "pool bounds must be non-negative")
	}
	if db.MaxConns > 0 && db.MinConns > db.MaxConns {
		return invalid("database.min_conns", "must not exceed database.max_conns")
	}
	if db.ConnectTimeout < 0 || db.StatementTimeout < 0 || db.MaxConnIdleTime < 0 {
		return invalid("database", "timeouts must be non-negative")
	}
	if _, err := store.ParseIsolation(db.Isolation); err != nil {
		return invalid("database.isolation", "must be read_committed, repeatable_read or serializable")
	}
	if db.Retry.MaxAttempts < 1 || db.Retry.MaxAttempts > 10 {
		return invalid("database.retry.max_attempts", "must be between 1 and 10")
	}
	if db.Retry.BaseDelay <= 0 || db.Retry.MaxDelay < db.Retry.BaseDelay {
		return invalid("database.retry.base_delay", "must be positive and not exceed database.retry.max_delay")
	}

	a := c.Auth
	if a.AccessTTL <= 0 || a.RefreshTTL <= 0 || a.ResetTTL <= 0 {
		return invalid("auth.access_ttl", "token lifetimes must be positive")
	}
	if a.RefreshTTL <= a.AccessTTL {
		return invalid("auth.refresh_ttl", "must be longer than auth.access_ttl")
	}
	if a.Leeway < 0 || a.ForgotPasswordFloor < 0 {
		return invalid("auth.leeway", "must be non-negative")
	}
	if a.Argon2.Time < 1 || a.Argon2.MemoryKiB < 8*1024 || a.Argon2.Threads < 1 {
		return invalid("auth.argon2", "time >= 1, memory_kib >= 8192 and threads >= 1 are required")
	}
	if a.Lockout.Threshold < 0 || (a.Lockout.Threshold > 0 && a.Lockout.Duration <= 0) {
		return invalid("auth.lockout", "threshold must be non-negative and duration positive when enabled")
	}
	if _, err := auth.NewRegistrationPolicy(a.Registration.AllowedEmailDomains); err != nil {
		return invalid("auth.registration.allowed_email_domains", "contains an invalid pattern")
	}

	if c.Sweeper.Interval <= 0 || c.Sweeper.Retention < 0 || c.Sweeper.AuditRetention < 0 {
		return invalid("sweeper.interval", "interval must be positive and retention non-negative")
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return invalid("metrics.addr", "must be host:port")
		}
	}
	return nil
}

// ValidateSecrets checks the token secrets.
func (c *Config) ValidateSecrets() error {
	if len(c.Auth.AccessSecret) < token.MinKeyLength {
		return invalid("auth.access_secret", "must be at least 32 bytes")
	}
	if len(c.Auth.RefreshSecret) < token.MinKeyLength {
		return invalid("auth.refresh_secret", "must be at least 32 bytes")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return invalid("auth.refresh_secret", "must differ from auth.access_secret")
	}
	return nil
}

// RequireDatabase checks that a database URL is set.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "is required (or set DATABASE_URL)")
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, msg)
}

// PoolConfig maps the database section onto store.PoolConfig.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		URL:              c.Database.URL,
		Production:       c.IsProduction(),
		MaxConns:         c.Database.MaxConns,
		MinConns:         c.Database.MinConns,
		MaxConnIdleTime:  c.Database.MaxConnIdleTime,
		ConnectTimeout:   c.Database.ConnectTimeout,
		StatementTimeout: c.Database.StatementTimeout,
	}
}

// RetryPolicy maps the retry section onto retry.Policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.Database.Retry.MaxAttempts,
		BaseDelay:     c.Database.Retry.BaseDelay,
		MaxDelay:      c.Database.Retry.MaxDelay,
		JitterPercent: 20,
	}
}

// TokenConfig maps the auth section onto token.Config.
func (c *Config) TokenConfig() token.Config {
	return token.Config{
		AccessSecret:  []byte(c.Auth.AccessSecret),
		RefreshSecret: []byte(c.Auth.RefreshSecret),
		AccessTTL:     c.Auth.AccessTTL,
		Issuer:        c.Auth.Issuer,
		Audience:      c.Auth.Audience,
		Leeway:        c.Auth.Leeway,
	}
}

// Argon2Params maps the hashing cost onto auth.Argon2Params.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:      c.Auth.Argon2.Time,
		MemoryKiB: c.Auth.Argon2.MemoryKiB,
		Threads:   c.Auth.Argon2.Threads,
	}
}

// LockoutPolicy maps the lockout section onto auth.LockoutPolicy.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{Threshold: c.Auth.Lockout.Threshold, Duration: c.Auth.Lockout.Duration}
}

// SweeperConfig maps the sweeper section onto auth.SweeperConfig.
func (c *Config) SweeperConfig() auth.SweeperConfig {
	return auth.SweeperConfig{
		Interval:       c.Sweeper.Interval,
		Retention:      c.Sweeper.Retention,
		AuditRetention: c.Sweeper.AuditRetention,
	}
}
