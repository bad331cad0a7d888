// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnia/turnia/internal/config"
	"github.com/turnia/turnia/internal/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the turnia CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "turnia",
		Short: "Turnia authentication core",
		Long: `Turnia manages user credentials and sessions: registration, login,
refresh token rotation with reuse detection, and password resets,
all backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/turnia/config.yaml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json or text)")
	pf.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")

	cmd.AddCommand(newServeCmd(opts, deps))
	cmd.AddCommand(newMigrateCmd(opts, deps))
	cmd.AddCommand(newCleanupCmd(opts, deps))
	cmd.AddCommand(newStatusCmd(opts, deps))
	cmd.AddCommand(newUserCmd(opts, deps))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}

// loadConfig reads and validates configuration for cmd.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		File:   opts.configFile,
		DotEnv: opts.envFile,
		Flags:  cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDatabaseConfig is loadConfig plus a required database URL.
func loadDatabaseConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Service: "turnia",
		Version: version,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}
	return logger, nil
}
