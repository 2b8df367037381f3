package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsFS returns the embedded migrations rooted at the migrations
// directory.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

// MigrateUp runs all pending migrations. It is a no-op when the schema is
// already current.
func (db *DB) MigrateUp(migFS fs.FS) error {
	m, err := db.newMigrate(migFS)
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migFS fs.FS) error {
	m, err := db.newMigrate(migFS)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current version and dirty flag; 0 when no
// migration has been applied.
func (db *DB) MigrateVersion(migFS fs.FS) (version uint, dirty bool, err error) {
	m, err := db.newMigrate(migFS)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateForce sets the version without running migrations, to recover from
// a dirty state.
func (db *DB) MigrateForce(migFS fs.FS, version int) error {
	m, err := db.newMigrate(migFS)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrateTo migrates up or down to version.
func (db *DB) MigrateTo(migFS fs.FS, version uint) error {
	m, err := db.newMigrate(migFS)
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// LatestMigrationVersion returns the highest version in migFS.
func LatestMigrationVersion(migFS fs.FS) (uint, error) {
	entries, err := fs.Glob(migFS, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	var latest uint
	for _, name := range entries {
		var version uint
		if _, err := fmt.Sscanf(name, "%d_", &version); err == nil && version > latest {
			latest = version
		}
	}
	if latest == 0 {
		return 0, errors.New("no migration files found")
	}
	return latest, nil
}

// CheckMigrations reports an error when the schema is dirty or not at the
// latest version.
func (db *DB) CheckMigrations(migFS fs.FS) error {
	current, dirty, err := db.MigrateVersion(migFS)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	latest, err := LatestMigrationVersion(migFS)
	if err != nil {
		return err
	}
	switch {
	case dirty:
		return fmt.Errorf("database is in a dirty state (version %d); run 'canpilot migrate status'", current)
	case current > latest:
		return fmt.Errorf("database version (%d) is ahead of latest migration (%d)", current, latest)
	case current < latest:
		return fmt.Errorf("database schema is out of date (version %d, need %d); run 'canpilot migrate up'", current, latest)
	}
	return nil
}

// TableExists reports whether a table of that name exists.
func (db *DB) TableExists(name string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) newMigrate(migFS fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(migFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }
