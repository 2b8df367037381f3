package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one drive: a model, its parameters and a time span.
type Session struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Params    json.RawMessage `json:"params,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// StartSession creates a session with a fresh UUID. params is stored as JSON.
func (db *DB) StartSession(model string, params any, started time.Time) (*Session, error) {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
	}
	s := &Session{
		ID:        uuid.NewString(),
		Model:     model,
		Params:    raw,
		StartedAt: started,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, model, params_json, started_unix_nanos) VALUES (?, ?, ?, ?)`,
		s.ID, s.Model, string(raw), started.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session end time.
func (db *DB) EndSession(id string, ended time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_unix_nanos = ? WHERE session_id = ?`, ended.UnixNano(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func scanSession(scan func(...any) error) (Session, error) {
	var (
		s       Session
		params  sql.NullString
		started int64
		ended   sql.NullInt64
	)
	if err := scan(&s.ID, &s.Model, &params, &started, &ended); err != nil {
		return Session{}, err
	}
	if params.Valid && params.String != "" {
		s.Params = json.RawMessage(params.String)
	}
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	return s, nil
}

const sessionColumns = `session_id, model, params_json, started_unix_nanos, ended_unix_nanos`

// GetSession loads one session.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
