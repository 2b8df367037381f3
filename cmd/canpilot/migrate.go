package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/canpilot/internal/db"
)

var migrateDBPath string

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.PersistentFlags().StringVar(&migrateDBPath, "db", "canpilot.db", "SQLite session database")

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  withMigrations(migrateUp),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  withMigrations(migrateDown),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema version and whether it is current",
			Args:  cobra.NoArgs,
			RunE:  withMigrations(migrateStatus),
		},
		&cobra.Command{
			Use:   "version N",
			Short: "Migrate up or down to version N",
			Args:  cobra.ExactArgs(1),
			RunE:  withMigrations(migrateToVersion),
		},
		&cobra.Command{
			Use:   "force N",
			Short: "Mark the schema as version N without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE:  withMigrations(migrateForce),
		},
	)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the session database schema",
}

// migrateAction runs against a database opened without auto-migration.
type migrateAction func(w io.Writer, store *db.DB, args []string) error

func withMigrations(action migrateAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, err := db.OpenDB(migrateDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		return action(cmd.OutOrStdout(), store, args)
	}
}

func migrateUp(w io.Writer, store *db.DB, _ []string) error {
	migFS, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	if err := store.MigrateUp(migFS); err != nil {
		return err
	}
	return migrateStatus(w, store, nil)
}

func migrateDown(w io.Writer, store *db.DB, _ []string) error {
	migFS, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	if err := store.MigrateDown(migFS); err != nil {
		return err
	}
	return migrateStatus(w, store, nil)
}

func migrateStatus(w io.Writer, store *db.DB, _ []string) error {
	migFS, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	current, dirty, err := store.MigrateVersion(migFS)
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion(migFS)
	if err != nil {
		return err
	}
	state := "current"
	if err := store.CheckMigrations(migFS); err != nil {
		state = err.Error()
	}
	fmt.Fprintf(w, "version=%d latest=%d dirty=%v: %s\n", current, latest, dirty, state)
	return nil
}

func migrateToVersion(w io.Writer, store *db.DB, args []string) error {
	v, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("bad version %q: %w", args[0], err)
	}
	migFS, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	if err := store.MigrateTo(migFS, uint(v)); err != nil {
		return err
	}
	return migrateStatus(w, store, nil)
}

func migrateForce(w io.Writer, store *db.DB, args []string) error {
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad version %q: %w", args[0], err)
	}
	migFS, err := db.MigrationsFS()
	if err != nil {
		return err
	}
	if err := store.MigrateForce(migFS, v); err != nil {
		return err
	}
	return migrateStatus(w, store, nil)
}
