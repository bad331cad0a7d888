// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package pgtest starts a disposable PostgreSQL for integration tests.
package pgtest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turnia/turnia/internal/store"
)

// Image is the PostgreSQL image tests run against.
const Image = "postgres:18-alpine"

// Database is a running container with a migrated schema.
type Database struct {
	URL       string
	Pool      *pgxpool.Pool
	container testcontainers.Container
}

// Start runs a container, applies every migration, and opens a pool.
func Start(ctx context.Context) (*Database, error) {
	container, err := postgres.Run(ctx,
		Image,
		postgres.WithDatabase("turnia_test"),
		postgres.WithUsername("turnia"),
		postgres.WithPassword("turnia"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.Code("PGTEST_CONTAINER_FAILED").Wrap(err)
	}

	db := &Database{container: container}
	db.URL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		db.Close(ctx)
		return nil, oops.Code("PGTEST_CONTAINER_FAILED").Wrap(err)
	}

	m, err := store.NewMigrator(db.URL)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	err = m.Up()
	_ = m.Close() //nolint:errcheck // migration result takes precedence
	if err != nil {
		db.Close(ctx)
		return nil, err
	}

	db.Pool, err = store.NewPool(ctx, store.PoolConfig{URL: db.URL, MaxConns: 16})
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

// Truncate empties every table between specs.
func (d *Database) Truncate(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx,
		"TRUNCATE auth_events, reset_tokens, refresh_tokens, users CASCADE")
	return err
}

// Close releases the pool and terminates the container.
func (d *Database) Close(ctx context.Context) {
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.container != nil {
		_ = d.container.Terminate(ctx) //nolint:errcheck // best effort teardown
	}
}
