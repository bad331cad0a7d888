// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package store

import (
	"embed"
	"errors"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Registers the pgx5:// driver.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema step.
type Migration struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
}

// MigrationStatus describes where the schema stands relative to the binary.
type MigrationStatus struct {
	Current uint        `json:"current"`
	Latest  uint        `json:"latest"`
	Dirty   bool        `json:"dirty"`
	Applied []Migration `json:"applied"`
	Pending []Migration `json:"pending"`
}

// UpToDate reports whether every embedded migration is applied cleanly.
func (s MigrationStatus) UpToDate() bool {
	return !s.Dirty && len(s.Pending) == 0
}

var (
	catalogOnce sync.Once
	catalog     []Migration
	catalogErr  error
)

// migrationEngine is the subset of *migrate.Migrate the Migrator drives.
type migrationEngine interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	engine migrationEngine
}

// MigrationURL rewrites postgres:// and postgresql:// URLs to the pgx5://
// scheme golang-migrate's pgx driver registers under.
func MigrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// NewMigrator connects a migrator to databaseURL.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, MigrationURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	return &Migrator{engine: m}, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	if err := ignoreNoChange(m.engine.Up()); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down drops the whole schema.
func (m *Migrator) Down() error {
	if err := ignoreNoChange(m.engine.Down()); err != nil {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps migrates n steps up (n > 0) or down (n < 0).
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return oops.Code("MIGRATION_STEPS_INVALID").Errorf("steps must be non-zero")
	}
	if err := ignoreNoChange(m.engine.Steps(n)); err != nil {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version returns the applied version. An empty schema is version 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.engine.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return v, dirty, nil
}

// Force records version as applied without running anything. It is the
// recovery path for a dirty schema after a manual fix.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").With("version", version).Errorf("version must be non-negative")
	}
	if err := m.engine.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Status compares the applied version against the embedded migrations.
func (m *Migrator) Status() (MigrationStatus, error) {
	current, dirty, err := m.Version()
	if err != nil {
		return MigrationStatus{}, err
	}
	all, err := Migrations()
	if err != nil {
		return MigrationStatus{}, err
	}

	st := MigrationStatus{Current: current, Dirty: dirty}
	for _, mig := range all {
		if mig.Version <= current {
			st.Applied = append(st.Applied, mig)
		} else {
			st.Pending = append(st.Pending, mig)
		}
		st.Latest = max(st.Latest, mig.Version)
	}
	return st, nil
}

// Close releases the source and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.engine.Close()
	if srcErr == nil && dbErr == nil {
		return nil
	}
	return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(errors.Join(srcErr, dbErr))
}

// Migrations lists the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = readCatalog(migrationsFS)
	})
	if catalogErr != nil {
		return nil, catalogErr
	}
	return slices.Clone(catalog), nil
}

// readCatalog collects NNNNNN_name.up.sql files. Anything else is ignored.
func readCatalog(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").Wrap(err)
	}

	var out []Migration
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if !ok {
			continue
		}
		num, name, ok := strings.Cut(base, "_")
		if !ok || len(num) != 6 {
			continue
		}
		v, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, Migration{Version: uint(v), Name: name})
	}
	slices.SortFunc(out, func(a, b Migration) int { return int(a.Version) - int(b.Version) })
	return out, nil
}
