// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package store

import (
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycast/skycast/pkg/errutil"
)

type fakeRunner struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSrcErr, closeDBErr            error
	steps                              []int
	forced                             []int
}

func (f *fakeRunner) Up() error   { return f.upErr }
func (f *fakeRunner) Down() error { return f.downErr }
func (f *fakeRunner) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}
func (f *fakeRunner) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeRunner) Force(v int) error {
	f.forced = append(f.forced, v)
	return f.forceErr
}
func (f *fakeRunner) Close() (error, error) { return f.closeSrcErr, f.closeDBErr }

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/skycast")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/skycast":   "pgx5://u:p@db:5432/skycast",
		"postgresql://u:p@db:5432/skycast": "pgx5://u:p@db:5432/skycast",
		"pgx5://db/skycast":                "pgx5://db/skycast",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestMigrator_NoChangeIsSuccess(t *testing.T) {
	m := &Migrator{m: &fakeRunner{upErr: migrate.ErrNoChange, downErr: migrate.ErrNoChange, stepsErr: migrate.ErrNoChange}}
	require.NoError(t, m.Up())
	require.NoError(t, m.Down())
	require.NoError(t, m.Steps(1))
}

func TestMigrator_Errors(t *testing.T) {
	boom := errors.New("database locked")
	m := &Migrator{m: &fakeRunner{upErr: boom, downErr: boom, stepsErr: boom, forceErr: boom, versionErr: boom}}

	errutil.AssertErrorCode(t, m.Up(), "MIGRATION_UP_FAILED")
	errutil.AssertErrorCode(t, m.Down(), "MIGRATION_DOWN_FAILED")
	errutil.AssertErrorCode(t, m.Steps(-1), "MIGRATION_STEPS_FAILED")
	errutil.AssertErrorCode(t, m.Force(1), "MIGRATION_FORCE_FAILED")
	_, _, err := m.Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Version(t *testing.T) {
	m := &Migrator{m: &fakeRunner{versionErr: migrate.ErrNilVersion}}
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	m = &Migrator{m: &fakeRunner{version: 2, dirty: true}}
	v, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)
}

func TestMigrator_Force(t *testing.T) {
	runner := &fakeRunner{}
	m := &Migrator{m: runner}

	errutil.AssertErrorCode(t, m.Force(-1), "INVALID_VERSION")
	assert.Empty(t, runner.forced)

	require.NoError(t, m.Force(1))
	assert.Equal(t, []int{1}, runner.forced)
}

func TestMigrator_Close(t *testing.T) {
	src, db := errors.New("src"), errors.New("db")
	tests := []struct {
		name      string
		runner    *fakeRunner
		component string
	}{
		{"source", &fakeRunner{closeSrcErr: src}, "source"},
		{"database", &fakeRunner{closeDBErr: db}, "database"},
		{"both", &fakeRunner{closeSrcErr: src, closeDBErr: db}, "both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: tt.runner}).Close()
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}
	require.NoError(t, (&Migrator{m: &fakeRunner{}}).Close())
}

func TestMigrator_Status(t *testing.T) {
	m := &Migrator{m: &fakeRunner{version: 1}}
	status, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)
	require.Len(t, status.Applied, 1)
	assert.Equal(t, "000001_users", status.Applied[0].Name)
	require.NotEmpty(t, status.Pending)
	assert.Equal(t, "000002_search_history", status.Pending[0].Name)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := 0, 0
	for _, entry := range entries {
		assert.Regexp(t, pattern, entry.Name())
		if regexp.MustCompile(`\.up\.sql$`).MatchString(entry.Name()) {
			ups++
		} else {
			downs++
		}
	}
	assert.Equal(t, ups, downs, "every migration needs an up and a down")

	all, err := Migrations()
	require.NoError(t, err)
	for i, mig := range all {
		assert.Equal(t, uint(i+1), mig.Version, "versions are contiguous")
	}
}

func TestListMigrations_SkipsUnexpectedFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000002_b.up.sql":   {},
		"migrations/000001_a.up.sql":   {},
		"migrations/000001_a.down.sql": {},
		"migrations/README.md":         {},
		"migrations/notes.up.sql":      {},
	}
	got, err := listMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{{1, "000001_a"}, {2, "000002_b"}}, got)
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_users", name)

	name, err = MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}
