package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/canbus"
	"github.com/banshee-data/canpilot/internal/canlog"
	"github.com/banshee-data/canpilot/internal/db"
	"github.com/banshee-data/canpilot/internal/ford"
	"github.com/banshee-data/canpilot/internal/pipeline"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var replayOpts struct {
	model           string
	configPath      string
	dbPath          string
	fingerprintTime time.Duration
	engaged         bool
	steer           float64
}

func init() {
	rootCmd.AddCommand(replayCmd)

	f := replayCmd.Flags()
	f.StringVarP(&replayOpts.model, "model", "m", "", "Vehicle model, see 'canpilot params'")
	f.StringVarP(&replayOpts.configPath, "config", "c", "", "Control tuning JSON file (defaults when empty)")
	f.StringVar(&replayOpts.dbPath, "db", "", "Record the replayed session to this SQLite database")
	f.DurationVar(&replayOpts.fingerprintTime, "fingerprint-time", 2*time.Second, "Leading span of the capture used to select parameters")
	f.BoolVar(&replayOpts.engaged, "engaged", false, "Replay with the control intent engaged")
	f.Float64Var(&replayOpts.steer, "steer", 0, "Steering request in [-1, 1] while engaged")
	replayCmd.MarkFlagRequired("model")
}

var replayCmd = &cobra.Command{
	Use:   "replay CAPTURE.pcap",
	Short: "Run a recorded capture through the decoder, tracker and encoder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := replayCapture(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sum)
		return nil
	},
}

// replaySummary is printed at the end of a replay.
type replaySummary struct {
	Cycles     uint64
	FramesIn   uint64
	FramesOut  uint64
	MaxSpeed   float64
	LastRadar  int
	RadarError bool
	SessionID  string
}

func (s replaySummary) String() string {
	out := fmt.Sprintf("cycles=%d frames_in=%d frames_out=%d max_v_ego=%.2fm/s radar_tracks=%d radar_error=%v",
		s.Cycles, s.FramesIn, s.FramesOut, s.MaxSpeed, s.LastRadar, s.RadarError)
	if s.SessionID != "" {
		out += " session=" + s.SessionID
	}
	return out
}

// fingerprintCapture observes the powertrain frames in the first span of
// the capture at path.
func fingerprintCapture(path string, span time.Duration) (vehicle.Fingerprint, error) {
	var fp vehicle.Fingerprint
	r, err := canlog.Open(path)
	if err != nil {
		return fp, err
	}
	defer r.Close()

	var start time.Time
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return fp, nil
		}
		if err != nil {
			return fp, err
		}
		if start.IsZero() {
			start = rec.Time
		}
		if rec.Time.Sub(start) > span {
			return fp, nil
		}
		fp.Observe(rec.Frame, ford.BusPowertrain)
	}
}

func replayCapture(path string) (replaySummary, error) {
	var sum replaySummary
	if replayOpts.steer < -1 || replayOpts.steer > 1 {
		return sum, fmt.Errorf("--steer must be within [-1, 1], got %v", replayOpts.steer)
	}
	cfg, err := loadConfig(replayOpts.configPath)
	if err != nil {
		return sum, err
	}
	fp, err := fingerprintCapture(path, replayOpts.fingerprintTime)
	if err != nil {
		return sum, err
	}
	vi, err := ford.New(vehicle.Model(replayOpts.model), fp, cfg)
	if err != nil {
		return sum, err
	}

	opts := pipeline.Options{RecordEvery: cfg.GetRecordEvery()}
	if replayOpts.dbPath != "" {
		store, err := db.NewDB(replayOpts.dbPath)
		if err != nil {
			return sum, fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		sess, err := store.StartSession(string(vi.Params().Model), vi.Params(), time.Now())
		if err != nil {
			return sum, err
		}
		sum.SessionID = sess.ID
		defer func() {
			if err := store.EndSession(sess.ID, time.Now()); err != nil {
				log.Printf("failed to end session %s: %v", sess.ID, err)
			}
		}()
		opts.Recorder = store.Recorder(sess.ID)
	}

	// Commands go nowhere offline.
	p := pipeline.New(vi, canbus.NewDisabledBus(), opts)
	p.SetIntent(vehicle.CarControl{
		Enabled:   replayOpts.engaged,
		Actuators: vehicle.Actuators{Steer: replayOpts.steer},
	})

	r, err := canlog.Open(path)
	if err != nil {
		return sum, err
	}
	defer r.Close()

	err = canlog.Replay(r, cfg.GetControlInterval(), func(nanos int64, frames []can.Frame) error {
		for _, f := range frames {
			p.Ingest(f)
		}
		snap := p.Step(time.Unix(0, nanos))
		if snap.State.VEgo > sum.MaxSpeed {
			sum.MaxSpeed = snap.State.VEgo
		}
		sum.LastRadar = len(snap.Radar.Points)
		sum.RadarError = snap.Radar.CanError
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("replay %s: %w", path, err)
	}

	s := p.Stats()
	sum.Cycles, sum.FramesIn, sum.FramesOut = s.Cycles, s.FramesIn, s.FramesOut
	return sum, nil
}
