// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/turnia/turnia/internal/xdg"
)

// EnvPrefix prefixes every configuration environment variable. A double
// underscore separates nesting levels: TURNIA_AUTH__ACCESS_TTL is auth.access_ttl.
const EnvPrefix = "TURNIA_"

// Options tells Load where to look.
type Options struct {
	// File is an explicit config path. When empty, DefaultPath is used if it
	// exists.
	File string
	// DotEnv is a .env file loaded into the process environment before
	// anything else. Missing files are ignored.
	DotEnv string
	// Flags are applied last. Only flags the user set override; see FlagKeys
	// for the flag to key mapping.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to configuration keys. Flags not
// listed here are ignored by Load.
var FlagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"database-url": "database.url",
	"metrics-addr": "metrics.addr",
}

// DefaultPath is $XDG_CONFIG_HOME/turnia/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load builds a Config from defaults, file, environment and flags. It does
// not validate.
func Load(opts Options) (*Config, error) {
	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_DOTENV_FAILED").With("path", opts.DotEnv).Wrap(err)
		}
	}
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	} else if explicit {
		return nil, oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		fs := opts.Flags
		err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			return flagKey(f.Name), posflag.FlagVal(fs, f)
		}), nil)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if cfg.Database.URL == "" {
		if url, ok := os.LookupEnv("DATABASE_URL"); ok {
			cfg.Database.URL = url
		}
	}
	return cfg, nil
}

// envKey maps TURNIA_AUTH__ACCESS_TTL to auth.access_ttl. Comma separated
// values become lists for list keys.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == keyAllowedDomains {
		return key, splitList(value)
	}
	return key, value
}

const keyAllowedDomains = "auth.registration.allowed_email_domains"

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// flagKey returns "" for unmapped flags, which posflag skips.
func flagKey(name string) string {
	return FlagKeys[name]
}

// defaultsMap flattens Default() into koanf keys.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"env":                         d.Env,
		"log.level":                   d.Log.Level,
		"log.format":                  d.Log.Format,
		"database.url":                d.Database.URL,
		"database.max_conns":          d.Database.MaxConns,
		"database.min_conns":          d.Database.MinConns,
		"database.max_conn_idle_time": d.Database.MaxConnIdleTime.String(),
		"database.connect_timeout":    d.Database.ConnectTimeout.String(),
		"database.statement_timeout":  d.Database.StatementTimeout.String(),
		"database.isolation":          d.Database.Isolation,
		"database.retry.max_attempts": d.Database.Retry.MaxAttempts,
		"database.retry.base_delay":   d.Database.Retry.BaseDelay.String(),
		"database.retry.max_delay":    d.Database.Retry.MaxDelay.String(),
		"auth.access_secret":          d.Auth.AccessSecret,
		"auth.refresh_secret":         d.Auth.RefreshSecret,
		"auth.access_ttl":             d.Auth.AccessTTL.String(),
		"auth.refresh_ttl":            d.Auth.RefreshTTL.String(),
		"auth.reset_ttl":              d.Auth.ResetTTL.String(),
		"auth.issuer":                 d.Auth.Issuer,
		"auth.audience":               d.Auth.Audience,
		"auth.leeway":                 d.Auth.Leeway.String(),
		"auth.strict_sessions":        d.Auth.StrictSessions,
		"auth.forgot_password_floor":  d.Auth.ForgotPasswordFloor.String(),
		"auth.argon2.time":            d.Auth.Argon2.Time,
		"auth.argon2.memory_kib":      d.Auth.Argon2.MemoryKiB,
		"auth.argon2.threads":         d.Auth.Argon2.Threads,
		"auth.lockout.threshold":      d.Auth.Lockout.Threshold,
		"auth.lockout.duration":       d.Auth.Lockout.Duration.String(),
		"sweeper.interval":            d.Sweeper.Interval.String(),
		"sweeper.retention":           d.Sweeper.Retention.String(),
		"sweeper.audit_retention":     d.Sweeper.AuditRetention.String(),
		"metrics.addr":                d.Metrics.Addr,
	}
}

// DefaultYAML renders the defaults as a config file. Empty values such as
// the secrets are left out for the operator to fill in.
func DefaultYAML() ([]byte, error) {
	m := defaultsMap()
	for key, v := range m {
		if s, ok := v.(string); ok && s == "" {
			delete(m, key)
		}
	}
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return data, nil
}
