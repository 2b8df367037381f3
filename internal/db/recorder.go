package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// Cycle is everything recorded for one control cycle.
type Cycle struct {
	Nanos   int64
	State   vehicle.CarState
	Enabled bool
	Sent    vehicle.Actuators
	Frames  []can.Frame
	Radar   vehicle.RadarData
	// RadarNanos is when Radar was produced; zero means Nanos.
	RadarNanos int64
	// RadarOK is false when there is no radar snapshot to store.
	RadarOK bool
}

// StateRow is a stored vehicle state sample.
type StateRow struct {
	Nanos            int64   `json:"ts_unix_nanos"`
	VEgo             float64 `json:"v_ego"`
	AEgo             float64 `json:"a_ego"`
	VEgoRaw          float64 `json:"v_ego_raw"`
	Standstill       bool    `json:"standstill"`
	SteeringAngleDeg float64 `json:"steering_angle_deg"`
	GasPressed       bool    `json:"gas_pressed"`
	BrakePressed     bool    `json:"brake_pressed"`
	CruiseEnabled    bool    `json:"cruise_enabled"`
	CruiseSpeed      float64 `json:"cruise_speed"`
	Gear             string  `json:"gear"`
	CanValid         bool    `json:"can_valid"`
}

// CommandRow is a stored encoder output.
type CommandRow struct {
	Nanos            int64   `json:"ts_unix_nanos"`
	Enabled          bool    `json:"enabled"`
	Steer            float64 `json:"steer"`
	SteeringAngleDeg float64 `json:"steering_angle_deg"`
	FrameCount       int     `json:"frame_count"`
	// Frames are SLCAN lines with the bus prefixed, e.g. "2:t3A88...".
	Frames []string `json:"frames"`
}

// TrackRow is a stored radar point.
type TrackRow struct {
	Nanos    int64   `json:"ts_unix_nanos"`
	TrackID  uint64  `json:"track_id"`
	Slot     uint32  `json:"slot"`
	DRel     float64 `json:"d_rel"`
	YRel     float64 `json:"y_rel"`
	VRel     float64 `json:"v_rel"`
	Measured bool    `json:"measured"`
	CanError bool    `json:"can_error"`
}

func encodeFrames(frames []can.Frame) string {
	parts := make([]string, 0, len(frames))
	for _, f := range frames {
		line, err := can.EncodeSLCAN(f)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d:%s", f.Bus, line))
	}
	return strings.Join(parts, " ")
}

// RecordCycle writes one cycle in a single transaction.
func (db *DB) RecordCycle(sessionID string, c Cycle) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cs := c.State
	if _, err := tx.Exec(
		`INSERT INTO vehicle_states (
			session_id, ts_unix_nanos, v_ego, a_ego, v_ego_raw, standstill,
			steering_angle_deg, gas_pressed, brake_pressed, cruise_enabled,
			cruise_speed, gear, can_valid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, c.Nanos, cs.VEgo, cs.AEgo, cs.VEgoRaw, cs.Standstill,
		cs.SteeringAngleDeg, cs.GasPressed, cs.BrakePressed, cs.Cruise.Enabled,
		cs.Cruise.Speed, cs.GearShifter.String(), cs.CanValid,
	); err != nil {
		return fmt.Errorf("failed to insert state: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO commands (
			session_id, ts_unix_nanos, enabled, steer, steering_angle_deg, frame_count, frames
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, c.Nanos, c.Enabled, c.Sent.Steer, c.Sent.SteeringAngleDeg,
		len(c.Frames), encodeFrames(c.Frames),
	); err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}

	if c.RadarOK {
		ts := c.RadarNanos
		if ts == 0 {
			ts = c.Nanos
		}
		if err := insertTracks(tx, sessionID, ts, c.Radar); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertTracks(tx *sql.Tx, sessionID string, nanos int64, rd vehicle.RadarData) error {
	if len(rd.Points) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO radar_tracks (
		session_id, ts_unix_nanos, track_id, slot, d_rel, y_rel, v_rel, measured, can_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range rd.Points {
		if _, err := stmt.Exec(sessionID, nanos, int64(p.TrackID), p.Slot, p.DRel, p.YRel, p.VRel, p.Measured, rd.CanError); err != nil {
			return fmt.Errorf("failed to insert radar track: %w", err)
		}
	}
	return nil
}

// States returns the latest limit state samples of a session, oldest first.
func (db *DB) States(sessionID string, limit int) ([]StateRow, error) {
	rows, err := db.Query(`SELECT * FROM (
		SELECT ts_unix_nanos, v_ego, a_ego, v_ego_raw, standstill, steering_angle_deg,
			gas_pressed, brake_pressed, cruise_enabled, cruise_speed, gear, can_valid
		FROM vehicle_states WHERE session_id = ? ORDER BY ts_unix_nanos DESC LIMIT ?
	) ORDER BY ts_unix_nanos ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateRow
	for rows.Next() {
		var r StateRow
		if err := rows.Scan(&r.Nanos, &r.VEgo, &r.AEgo, &r.VEgoRaw, &r.Standstill, &r.SteeringAngleDeg,
			&r.GasPressed, &r.BrakePressed, &r.CruiseEnabled, &r.CruiseSpeed, &r.Gear, &r.CanValid); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Commands returns the latest limit commands of a session, oldest first.
func (db *DB) Commands(sessionID string, limit int) ([]CommandRow, error) {
	rows, err := db.Query(`SELECT * FROM (
		SELECT ts_unix_nanos, enabled, steer, steering_angle_deg, frame_count, frames
		FROM commands WHERE session_id = ? ORDER BY ts_unix_nanos DESC LIMIT ?
	) ORDER BY ts_unix_nanos ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRow
	for rows.Next() {
		var (
			r      CommandRow
			frames string
		)
		if err := rows.Scan(&r.Nanos, &r.Enabled, &r.Steer, &r.SteeringAngleDeg, &r.FrameCount, &frames); err != nil {
			return nil, err
		}
		if frames != "" {
			r.Frames = strings.Split(frames, " ")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RadarTracks returns radar points of a session recorded at or after
// sinceNanos, in time then slot order.
func (db *DB) RadarTracks(sessionID string, sinceNanos int64) ([]TrackRow, error) {
	rows, err := db.Query(`SELECT ts_unix_nanos, track_id, slot, d_rel, y_rel, v_rel, measured, can_error
		FROM radar_tracks WHERE session_id = ? AND ts_unix_nanos >= ?
		ORDER BY ts_unix_nanos ASC, slot ASC`, sessionID, sinceNanos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackRow
	for rows.Next() {
		var (
			r       TrackRow
			trackID int64
		)
		if err := rows.Scan(&r.Nanos, &trackID, &r.Slot, &r.DRel, &r.YRel, &r.VRel, &r.Measured, &r.CanError); err != nil {
			return nil, err
		}
		r.TrackID = uint64(trackID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionRecorder records cycles into one session.
type SessionRecorder struct {
	db        *DB
	sessionID string
}

// Recorder binds cycle recording to sessionID.
func (db *DB) Recorder(sessionID string) *SessionRecorder {
	return &SessionRecorder{db: db, sessionID: sessionID}
}

func (r *SessionRecorder) SessionID() string { return r.sessionID }

func (r *SessionRecorder) Record(c Cycle) error {
	return r.db.RecordCycle(r.sessionID, c)
}
