// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnia/turnia/internal/logging"
	"github.com/turnia/turnia/internal/store"
	"github.com/turnia/turnia/pkg/errutil"
)

// shutdownTimeout bounds graceful shutdown of the observability server.
const shutdownTimeout = 10 * time.Second

type serveConfig struct {
	migrate bool
}

func newServeCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth core",
		Long: `Connect to PostgreSQL, start the expired token sweeper and serve
metrics and health probes until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, cfg, deps)
		},
	}

	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().BoolVar(&cfg.migrate, "migrate", false, "apply pending migrations before starting")

	return cmd
}

func runServe(cmd *cobra.Command, opts *globalOptions, serveCfg *serveConfig, deps *Deps) error {
	cfg, err := loadDatabaseConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSecrets(); err != nil {
		return err
	}

	logger, err := logging.Install(logging.Options{
		Service: "turnia",
		Version: version,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}

	ctx, stop := deps.SignalContext(cmd.Context())
	defer stop()

	if serveCfg.migrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	db, err := deps.Connect(ctx, cfg.PoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	var obs ObservabilityServer
	var reg prometheus.Registerer
	if cfg.Metrics.Addr != "" {
		obs = deps.NewObservability(cfg.Metrics.Addr, func(ctx context.Context) error {
			return store.HealthCheck(ctx, db)
		}, logger)
		registry := obs.Registry()
		if err := registry.Register(store.NewPoolCollector(db.Stats)); err != nil {
			return oops.Code("METRICS_REGISTER_FAILED").Wrap(err)
		}
		reg = registry
	}

	a, err := buildApp(cfg, db, reg, logger)
	if err != nil {
		return err
	}
	defer a.service.Close()

	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()

	var obsErr <-chan error
	if obs != nil {
		obsErr, err = obs.Start()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				errutil.LogError(logger, "observability shutdown failed", err)
			}
		}()
		logger.Info("observability server listening", "addr", obs.Addr())
	}

	logger.Info("turnia started",
		"env", cfg.Env,
		"isolation", cfg.Database.Isolation,
		"sweep_interval", cfg.Sweeper.Interval)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-obsErr:
		return oops.Code("OBSERVABILITY_FAILED").Wrap(err)
	}
}

// autoMigrate applies pending migrations.
func autoMigrate(deps *Deps, url string, logger *slog.Logger) (err error) {
	m, err := deps.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	status, err := m.Status()
	if err != nil {
		return err
	}
	logger.Info("database schema current", "version", status.Current)
	return nil
}
