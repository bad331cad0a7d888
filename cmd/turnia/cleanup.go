// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"github.com/spf13/cobra"
)

func newCleanupCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired tokens and old security events once",
		Long: `Run a single sweep: delete refresh and reset tokens that expired
longer ago than sweeper.retention, and security events older than
sweeper.audit_retention.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, deps, func(cmd *cobra.Command, a *app) error {
				res, err := a.sweeper.RunOnce(cmd.Context())
				cmd.Printf("Deleted %d refresh token(s), %d reset token(s), %d security event(s)\n",
					res.RefreshTokens, res.ResetTokens, res.AuditEvents)
				return err
			})
		},
	}
}

// withApp loads configuration, connects and assembles the auth core for a
// one-shot command.
func withApp(cmd *cobra.Command, opts *globalOptions, deps *Deps, fn func(*cobra.Command, *app) error) error {
	cfg, err := loadDatabaseConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSecrets(); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	db, err := deps.Connect(cmd.Context(), cfg.PoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := buildApp(cfg, db, nil, logger)
	if err != nil {
		return err
	}
	defer a.service.Close()
	return fn(cmd, a)
}
