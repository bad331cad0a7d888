// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package store

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnia/turnia/pkg/errutil"
)

type fakeEngine struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSrcErr, closeDBErr            error

	steps  []int
	forced []int
}

func (f *fakeEngine) Up() error   { return f.upErr }
func (f *fakeEngine) Down() error { return f.downErr }
func (f *fakeEngine) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}

func (f *fakeEngine) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeEngine) Force(v int) error {
	f.forced = append(f.forced, v)
	return f.forceErr
}
func (f *fakeEngine) Close() (error, error) { return f.closeSrcErr, f.closeDBErr }

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", MigrationURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://h/db?sslmode=disable", MigrationURL("postgresql://h/db?sslmode=disable"))
	assert.Equal(t, "pgx5://h/db", MigrationURL("pgx5://h/db"))
}

func TestNewMigrator_BadScheme(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/turnia")
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrator_UpTreatsNoChangeAsSuccess(t *testing.T) {
	m := &Migrator{engine: &fakeEngine{upErr: migrate.ErrNoChange}}
	assert.NoError(t, m.Up())

	m = &Migrator{engine: &fakeEngine{upErr: errors.New("syntax error")}}
	errutil.AssertErrorCode(t, m.Up(), "MIGRATION_UP_FAILED")
}

func TestMigrator_Down(t *testing.T) {
	m := &Migrator{engine: &fakeEngine{downErr: migrate.ErrNoChange}}
	assert.NoError(t, m.Down())

	m = &Migrator{engine: &fakeEngine{downErr: errors.New("locked")}}
	errutil.AssertErrorCode(t, m.Down(), "MIGRATION_DOWN_FAILED")
}

func TestMigrator_Steps(t *testing.T) {
	eng := &fakeEngine{}
	m := &Migrator{engine: eng}

	require.NoError(t, m.Steps(-1))
	assert.Equal(t, []int{-1}, eng.steps)

	errutil.AssertErrorCode(t, m.Steps(0), "MIGRATION_STEPS_INVALID")

	eng.stepsErr = errors.New("file does not exist")
	err := m.Steps(2)
	errutil.AssertErrorCode(t, err, "MIGRATION_STEPS_FAILED")
	errutil.AssertErrorContext(t, err, "steps", 2)
}

func TestMigrator_VersionOnEmptySchema(t *testing.T) {
	m := &Migrator{engine: &fakeEngine{versionErr: migrate.ErrNilVersion}}
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	m = &Migrator{engine: &fakeEngine{versionErr: errors.New("no table")}}
	_, _, err = m.Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Force(t *testing.T) {
	eng := &fakeEngine{}
	m := &Migrator{engine: eng}

	errutil.AssertErrorCode(t, m.Force(-1), "INVALID_VERSION")
	assert.Empty(t, eng.forced)

	require.NoError(t, m.Force(3))
	assert.Equal(t, []int{3}, eng.forced)

	eng.forceErr = errors.New("boom")
	errutil.AssertErrorCode(t, m.Force(2), "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Status(t *testing.T) {
	m := &Migrator{engine: &fakeEngine{version: 2}}
	st, err := m.Status()
	require.NoError(t, err)

	all, err := Migrations()
	require.NoError(t, err)

	assert.Equal(t, uint(2), st.Current)
	assert.Equal(t, all[len(all)-1].Version, st.Latest)
	assert.Len(t, st.Applied, 2)
	assert.Len(t, st.Pending, len(all)-2)
	assert.False(t, st.UpToDate())

	m = &Migrator{engine: &fakeEngine{version: st.Latest}}
	st, err = m.Status()
	require.NoError(t, err)
	assert.True(t, st.UpToDate())

	m = &Migrator{engine: &fakeEngine{version: st.Latest, dirty: true}}
	st, err = m.Status()
	require.NoError(t, err)
	assert.False(t, st.UpToDate(), "a dirty schema is never up to date")
}

func TestMigrator_Close(t *testing.T) {
	m := &Migrator{engine: &fakeEngine{}}
	assert.NoError(t, m.Close())

	src := errors.New("source")
	db := errors.New("database")
	m = &Migrator{engine: &fakeEngine{closeSrcErr: src, closeDBErr: db}}
	err := m.Close()
	errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
	assert.ErrorIs(t, err, src)
	assert.ErrorIs(t, err, db)
}

func TestReadCatalog_SkipsForeignFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000002_second.up.sql":   {},
		"migrations/000002_second.down.sql": {},
		"migrations/000001_first.up.sql":    {},
		"migrations/README.md":              {},
		"migrations/12_short.up.sql":        {},
		"migrations/00000x_bad.up.sql":      {},
	}
	got, err := readCatalog(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{{Version: 1, Name: "first"}, {Version: 2, Name: "second"}}, got)
}

func TestMigrations_ReturnsCopy(t *testing.T) {
	a, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, a)
	a[0].Name = "mutated"

	b, err := Migrations()
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", b[0].Name)
}
