// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// newMigrateCmd creates the migrate command group. Without a subcommand it
// applies all pending migrations.
func newMigrateCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the PostgreSQL schema migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, migrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, migrateUp)
		},
	})
	cmd.AddCommand(newMigrateDownCmd(opts, deps))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, migrateStatus)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Mark the schema as clean at VERSION. Use this to recover from a
failed migration after fixing the database by hand; -1 clears the version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, opts, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func newMigrateDownCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	var steps int
	var all bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the most recent migration, --steps migrations, or with --all every migration.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return oops.Code("MIGRATION_STEPS_INVALID").With("steps", steps).Errorf("--steps must be at least 1")
			}
			return withMigrator(cmd, opts, deps, func(cmd *cobra.Command, m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					if err := m.Down(); err != nil {
						return err
					}
				} else {
					cmd.Printf("Rolling back %d migration(s)...\n", steps)
					if err := m.Steps(-steps); err != nil {
						return err
					}
				}
				return migrateStatus(cmd, m)
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")

	return cmd
}

// withMigrator loads configuration, opens a migrator, runs fn and closes it.
func withMigrator(cmd *cobra.Command, opts *globalOptions, deps *Deps, fn func(*cobra.Command, Migrator) error) (err error) {
	cfg, err := loadDatabaseConfig(cmd, opts)
	if err != nil {
		return err
	}
	m, err := deps.NewMigrator(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(cmd, m)
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return migrateStatus(cmd, m)
}

func migrateStatus(cmd *cobra.Command, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	cmd.Printf("Current version: %d (latest %d)\n", status.Current, status.Latest)
	if status.Dirty {
		cmd.Println("Schema is DIRTY: fix the database and run 'turnia migrate force VERSION'")
	}
	for _, mig := range status.Applied {
		cmd.Printf("  [x] %06d %s\n", mig.Version, mig.Name)
	}
	for _, mig := range status.Pending {
		cmd.Printf("  [ ] %06d %s\n", mig.Version, mig.Name)
	}
	return nil
}

// parseForceVersion reads a leading integer; trailing characters are ignored.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
