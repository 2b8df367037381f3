package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canpilot/internal/httputil"
	"github.com/banshee-data/canpilot/internal/units"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSpeedChart plots measured and filtered speed plus the sent steering
// angle for the recorded session.
// Query params:
//   - session_id (optional; defaults to the running session)
//   - limit (optional; default 3000 samples)
func (s *Server) handleSpeedChart(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.NotFound(w, "recording is disabled")
		return
	}
	sessionID, err := s.sessionParam(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	limit := 3000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100000 {
			limit = n
		}
	}

	states, err := s.db.States(sessionID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load states: %v", err))
		return
	}
	cmds, err := s.db.Commands(sessionID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load commands: %v", err))
		return
	}
	if len(states) == 0 {
		httputil.NotFound(w, "no samples recorded for session")
		return
	}

	t0 := states[0].Nanos
	x := make([]string, 0, len(states))
	raw := make([]opts.LineData, 0, len(states))
	filtered := make([]opts.LineData, 0, len(states))
	for _, st := range states {
		x = append(x, fmt.Sprintf("%.2f", float64(st.Nanos-t0)/1e9))
		raw = append(raw, opts.LineData{Value: units.ConvertSpeed(st.VEgoRaw, s.units)})
		filtered = append(filtered, opts.LineData{Value: units.ConvertSpeed(st.VEgo, s.units)})
	}

	speed := charts.NewLine()
	speed.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Vehicle speed", Theme: "dark", Width: "1200px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Speed", Subtitle: fmt.Sprintf("session=%s samples=%d units=%s", sessionID, len(states), s.units)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: s.units}),
	)
	speed.SetXAxis(x).
		AddSeries("measured", raw).
		AddSeries("filtered", filtered)

	cx := make([]string, 0, len(cmds))
	angle := make([]opts.LineData, 0, len(cmds))
	for _, c := range cmds {
		cx = append(cx, fmt.Sprintf("%.2f", float64(c.Nanos-t0)/1e9))
		angle = append(angle, opts.LineData{Value: c.SteeringAngleDeg})
	}
	steer := charts.NewLine()
	steer.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "320px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Steering angle sent"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deg"}),
	)
	steer.SetXAxis(cx).AddSeries("angle", angle)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(speed, steer)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRadarChart renders the latest radar snapshot top-down: lateral
// offset on x (left negative), distance ahead on y.
func (s *Server) handleRadarChart(w http.ResponseWriter, r *http.Request) {
	snap := s.ctl.Latest()

	pts := make([]opts.ScatterData, 0, len(snap.Radar.Points))
	maxLat, maxDist := 5.0, 10.0
	for _, p := range snap.Radar.Points {
		x := -p.YRel
		pts = append(pts, opts.ScatterData{Value: []interface{}{x, p.DRel, p.VRel}, Name: strconv.FormatUint(p.TrackID, 10)})
		maxLat = math.Max(maxLat, math.Abs(x))
		maxDist = math.Max(maxDist, p.DRel)
	}

	subtitle := "no snapshot yet"
	if snap.RadarNanos != 0 {
		subtitle = fmt.Sprintf("tracks=%d at %s can_error=%v", len(pts), time.Unix(0, snap.RadarNanos).UTC().Format(time.RFC3339Nano), snap.Radar.CanError)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radar tracks", Theme: "dark", Width: "700px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Radar tracks", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -maxLat * 1.1, Max: maxLat * 1.1, Name: "lateral (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: maxDist * 1.05, Name: "distance (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("tracks", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
