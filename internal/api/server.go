// Package api serves the live pipeline over HTTP: the latest decoded state
// and radar snapshot, the control intent, the model parameters and the
// recorded sessions, plus echarts debug pages.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/canpilot/internal/db"
	"github.com/banshee-data/canpilot/internal/httputil"
	"github.com/banshee-data/canpilot/internal/pipeline"
	"github.com/banshee-data/canpilot/internal/units"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxIntentBody caps POST /api/intent bodies.
const maxIntentBody = 4096

// Controller is the live side of the server; *pipeline.Pipeline
// implements it.
type Controller interface {
	Latest() pipeline.Snapshot
	Stats() pipeline.Stats
	Intent() vehicle.CarControl
	SetIntent(vehicle.CarControl)
	Params() vehicle.CarParams
}

type Server struct {
	ctl       Controller
	db        *db.DB
	sessionID string
	units     string
}

// NewServer builds a server over ctl. database may be nil when recording is
// off; the session endpoints then return 404.
func NewServer(ctl Controller, database *db.DB, sessionID, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{ctl: ctl, db: database, sessionID: sessionID, units: speedUnits}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/radar", s.showRadar)
	mux.HandleFunc("/api/intent", s.handleIntent)
	mux.HandleFunc("/api/params", s.showParams)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/debug/charts/speed", s.handleSpeedChart)
	mux.HandleFunc("/debug/charts/radar", s.handleRadarChart)
	return mux
}

// stateResponse adds display-unit speeds to the snapshot.
type stateResponse struct {
	Cycle       uint64             `json:"cycle"`
	Nanos       int64              `json:"ts_unix_nanos"`
	Ready       bool               `json:"ready"`
	Units       string             `json:"units"`
	Speed       float64            `json:"speed"`
	CruiseSpeed float64            `json:"cruise_speed"`
	State       vehicle.CarState   `json:"state"`
	Intent      vehicle.CarControl `json:"intent"`
	Sent        vehicle.Actuators  `json:"sent"`
	Frames      int                `json:"frames"`
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.ctl.Latest()
	httputil.WriteJSONOK(w, stateResponse{
		Cycle:       snap.Cycle,
		Nanos:       snap.Nanos,
		Ready:       snap.Ready,
		Units:       s.units,
		Speed:       units.ConvertSpeed(snap.State.VEgo, s.units),
		CruiseSpeed: units.ConvertSpeed(snap.State.Cruise.Speed, s.units),
		State:       snap.State,
		Intent:      snap.Intent,
		Sent:        snap.Sent,
		Frames:      snap.Frames,
	})
}

type radarResponse struct {
	Nanos int64 `json:"ts_unix_nanos"`
	vehicle.RadarData
}

func (s *Server) showRadar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.ctl.Latest()
	rd := snap.Radar
	if rd.Points == nil {
		rd.Points = []vehicle.RadarPoint{}
	}
	httputil.WriteJSONOK(w, radarResponse{Nanos: snap.RadarNanos, RadarData: rd})
}

// intentRequest updates the control intent. Omitted fields keep their
// current value; cancel is a one-shot request.
type intentRequest struct {
	Enabled *bool    `json:"enabled"`
	Steer   *float64 `json:"steer"`
	Cancel  bool     `json:"cancel"`
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.ctl.Intent())
	case http.MethodPost:
		var req intentRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntentBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid intent: "+err.Error())
			return
		}
		if req.Steer != nil && (math.IsNaN(*req.Steer) || *req.Steer < -1 || *req.Steer > 1) {
			httputil.BadRequest(w, "steer must be within [-1, 1]")
			return
		}
		cc := s.ctl.Intent()
		if req.Enabled != nil {
			cc.Enabled = *req.Enabled
		}
		if req.Steer != nil {
			cc.Actuators.Steer = *req.Steer
		}
		cc.CruiseControl.Cancel = req.Cancel
		s.ctl.SetIntent(cc)
		httputil.WriteJSONOK(w, cc)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Params())
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Stats())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "recording is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, map[string]any{"current": s.sessionID, "sessions": sessions})
}

// sessionParam returns the session query parameter or the current session.
func (s *Server) sessionParam(r *http.Request) (string, error) {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id, nil
	}
	if s.sessionID == "" {
		return "", errors.New("no session")
	}
	return s.sessionID, nil
}
