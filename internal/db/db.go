// Package db records drive sessions to SQLite: the decoded vehicle state,
// the commands sent and the radar tracks seen, keyed by a session id.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/canpilot/internal/monitoring"
	"github.com/banshee-data/canpilot/internal/security"
)

var logf = monitoring.Component("db")

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(1)",
}

type DB struct {
	*sql.DB
	path string
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// OpenDB opens the database without touching the schema. The migrate
// command uses it so that it alone decides what gets applied.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migFS, err := MigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Session DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := fmt.Sprintf("%s-backup-%d.db", security.SanitizeFilename(strings.TrimSuffix(filepath.Base(db.path), filepath.Ext(db.path))), time.Now().UnixNano())
		backupPath := filepath.Join(os.TempDir(), name)
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				logf("failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			logf("failed to stream backup: %v", err)
		}
	}))
	return nil
}
