package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	migFS, err := MigrationsFS()
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
}

func TestMigrateLifecycle(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	migFS, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
	assert.ErrorContains(t, db.CheckMigrations(migFS), "out of date")

	require.NoError(t, db.MigrateTo(migFS, 1))
	ok, err := db.TableExists("sessions")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.TableExists("radar_tracks")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.MigrateUp(migFS))
	require.NoError(t, db.MigrateUp(migFS), "no change is not an error")
	require.NoError(t, db.CheckMigrations(migFS))
	ok, err = db.TableExists("radar_tracks")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.MigrateDown(migFS))
	version, _, err = db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateForce(migFS, 2))
	version, _, err = db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}
