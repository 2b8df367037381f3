// Command radar-plot replays a CAN capture through the radar tracker and
// renders the tracks it produced: a top-down view of every measured point
// and the range of each track over time.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/canlog"
	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/ford"
	"github.com/banshee-data/canpilot/internal/security"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var (
	capturePath = flag.String("capture", "", "pcap capture written by 'canpilot run --capture'")
	model       = flag.String("model", string(ford.EscapeMk4), "Vehicle model")
	configPath  = flag.String("config", "", "Control tuning JSON file (defaults when empty)")
	outPath     = flag.String("out", "radar.png", "Output PNG; the range plot is written next to it with a _range suffix")
)

// trackSample is one point of one radar snapshot.
type trackSample struct {
	Nanos int64
	Point vehicle.RadarPoint
}

func main() {
	flag.Parse()
	if *capturePath == "" {
		log.Fatal("-capture is required")
	}

	cfg := config.DefaultControlConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadControlConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	samples, err := collectTracks(*capturePath, vehicle.Model(*model), cfg)
	if err != nil {
		log.Fatalf("failed to replay %s: %v", *capturePath, err)
	}
	if len(samples) == 0 {
		log.Fatalf("no radar tracks in %s", *capturePath)
	}

	rangePath := rangePlotPath(*outPath)
	for _, p := range []string{*outPath, rangePath} {
		if err := security.ValidateOutputPath(p); err != nil {
			log.Fatalf("refusing to write %s: %v", p, err)
		}
	}
	if err := renderPlots(samples, *outPath, rangePath); err != nil {
		log.Fatalf("failed to render plots: %v", err)
	}
	log.Printf("wrote %d samples to %s and %s", len(samples), *outPath, rangePath)
}

func rangePlotPath(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "_range" + ext
}

// collectTracks replays the capture at the control rate and returns every
// measured point of every snapshot the tracker produced.
func collectTracks(path string, m vehicle.Model, cfg *config.ControlConfig) ([]trackSample, error) {
	vi, err := ford.New(m, vehicle.Fingerprint{}, cfg)
	if err != nil {
		return nil, err
	}
	if vi.Params().RadarUnavailable {
		return nil, fmt.Errorf("%s has no radar", ford.DisplayName(m))
	}

	r, err := canlog.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []trackSample
	tracker := vi.Tracker()
	err = canlog.Replay(r, cfg.GetControlInterval(), func(nanos int64, frames []can.Frame) error {
		rd, ok := tracker.Update(frames, nanos)
		if !ok {
			return nil
		}
		for _, pt := range rd.Points {
			if pt.Measured {
				out = append(out, trackSample{Nanos: nanos, Point: pt})
			}
		}
		return nil
	})
	return out, err
}

// renderPlots writes the top-down scatter to topPath and range over time to
// rangePath, one colour per track.
func renderPlots(samples []trackSample, topPath, rangePath string) error {
	if len(samples) == 0 {
		return errors.New("no samples")
	}
	start := samples[0].Nanos

	byTrack := make(map[uint64][]trackSample)
	for _, s := range samples {
		byTrack[s.Point.TrackID] = append(byTrack[s.Point.TrackID], s)
	}
	ids := make([]uint64, 0, len(byTrack))
	for id := range byTrack {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pTop := plot.New()
	pTop.Title.Text = "Radar tracks (top down)"
	pTop.X.Label.Text = "Lateral, right positive (m)"
	pTop.Y.Label.Text = "Longitudinal (m)"

	pRange := plot.New()
	pRange.Title.Text = "Radar track range"
	pRange.X.Label.Text = "Time (s)"
	pRange.Y.Label.Text = "Range (m)"

	for i, id := range ids {
		track := byTrack[id]
		top := make(plotter.XYs, len(track))
		rng := make(plotter.XYs, len(track))
		for j, s := range track {
			top[j] = plotter.XY{X: -s.Point.YRel, Y: s.Point.DRel}
			rng[j] = plotter.XY{X: time.Duration(s.Nanos - start).Seconds(), Y: s.Point.DRel}
		}

		sc, err := plotter.NewScatter(top)
		if err != nil {
			return fmt.Errorf("track %d: %w", id, err)
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Radius = vg.Points(2)
		pTop.Add(sc)

		line, err := plotter.NewLine(rng)
		if err != nil {
			return fmt.Errorf("track %d: %w", id, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		pRange.Add(line)

		// the legend gets crowded on long drives
		if i < 10 {
			label := fmt.Sprintf("track %d", id)
			pTop.Legend.Add(label, sc)
			pRange.Legend.Add(label, line)
		}
	}
	pTop.Legend.Top = true
	pRange.Legend.Top = true
	pTop.Add(plotter.NewGrid())
	pRange.Add(plotter.NewGrid())

	if err := pTop.Save(8*vg.Inch, 10*vg.Inch, topPath); err != nil {
		return fmt.Errorf("failed to save %s: %w", topPath, err)
	}
	if err := pRange.Save(14*vg.Inch, 6*vg.Inch, rangePath); err != nil {
		return fmt.Errorf("failed to save %s: %w", rangePath, err)
	}
	return nil
}
