// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnia/turnia/internal/config"
	"github.com/turnia/turnia/internal/xdg"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a config file",
		Long: `Check FILE (default: the --config path or the XDG default) against
the schema, then load it together with the environment and apply the
semantic checks that serve runs at startup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.DefaultPath()
			}
			data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
			if err != nil {
				return oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
			}
			if err := config.ValidateYAML(data); err != nil {
				return err
			}
			cfg, err := config.Load(config.Options{File: path, DotEnv: opts.envFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configFile
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return oops.Code("CONFIG_STAT_FAILED").With("path", path).Wrap(err)
			}
			data, err := config.DefaultYAML()
			if err != nil {
				return err
			}
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
