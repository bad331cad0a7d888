// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/turnia/turnia/internal/observability"
	"github.com/turnia/turnia/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Connect opens the database.
	// Default: store.NewPool
	Connect func(ctx context.Context, cfg store.PoolConfig) (Database, error)

	// NewMigrator creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(url string) (Migrator, error)

	// NewObservability creates the metrics and health server.
	// Default: observability.NewServer
	NewObservability func(addr string, ready observability.ReadinessCheck, logger *slog.Logger) ObservabilityServer

	// SignalContext returns a context cancelled on shutdown signals.
	// Default: signal.NotifyContext with SIGINT and SIGTERM
	SignalContext func(parent context.Context) (context.Context, context.CancelFunc)
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.Connect == nil {
		out.Connect = connectPostgres
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.NewObservability == nil {
		out.NewObservability = func(addr string, ready observability.ReadinessCheck, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.SignalContext == nil {
		out.SignalContext = func(parent context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		}
	}
	return out
}

// Database is the pool surface the commands use.
type Database interface {
	store.Pool
	Stats() store.PoolStats
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.MigrationStatus, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
}

type pgDatabase struct {
	*pgxpool.Pool
}

func (d pgDatabase) Stats() store.PoolStats {
	return store.Stats(d.Pool)
}

func connectPostgres(ctx context.Context, cfg store.PoolConfig) (Database, error) {
	pool, err := store.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pgDatabase{Pool: pool}, nil
}
