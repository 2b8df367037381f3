package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/canpilot/internal/api"
	"github.com/banshee-data/canpilot/internal/canbus"
	"github.com/banshee-data/canpilot/internal/canlog"
	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/db"
	"github.com/banshee-data/canpilot/internal/ford"
	"github.com/banshee-data/canpilot/internal/pipeline"
	"github.com/banshee-data/canpilot/internal/timeutil"
	"github.com/banshee-data/canpilot/internal/units"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var runOpts struct {
	model           string
	configPath      string
	listen          string
	dbPath          string
	capturePath     string
	units           string
	channels        []string
	bitrate         int
	baud            int
	fingerprintTime time.Duration
	disableCAN      bool
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runOpts.model, "model", "m", "", "Vehicle model, see 'canpilot params'")
	f.StringVarP(&runOpts.configPath, "config", "c", "", "Control tuning JSON file (defaults when empty)")
	f.StringVar(&runOpts.listen, "listen", ":8080", "HTTP listen address")
	f.StringVar(&runOpts.dbPath, "db", "", "SQLite session database (recording off when empty)")
	f.StringVar(&runOpts.capturePath, "capture", "", "Write all received frames to this pcap file")
	f.StringVar(&runOpts.units, "units", units.KPH, "Speed units for the API and charts")
	f.StringArrayVar(&runOpts.channels, "channel", nil, "CAN channel as BUS=slcan:/dev/ttyACM0 or BUS=socketcan:can0 (repeatable)")
	f.IntVar(&runOpts.bitrate, "bitrate", 500000, "CAN bitrate for SLCAN adapters")
	f.IntVar(&runOpts.baud, "baud", 115200, "Serial baud rate for SLCAN adapters")
	f.DurationVar(&runOpts.fingerprintTime, "fingerprint-time", 2*time.Second, "How long to watch the powertrain bus before selecting parameters")
	f.BoolVar(&runOpts.disableCAN, "disable-can", false, "Run without CAN hardware (API only)")
	runCmd.MarkFlagRequired("model")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop against live CAN buses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runController(cmd.Context())
	},
}

// loadConfig returns the defaults when path is empty.
func loadConfig(path string) (*config.ControlConfig, error) {
	if path == "" {
		return config.DefaultControlConfig(), nil
	}
	return config.LoadControlConfig(path)
}

func openRunBus() (canbus.Bus, error) {
	if runOpts.disableCAN {
		return canbus.NewDisabledBus(), nil
	}
	specs, err := parseChannels(runOpts.channels)
	if err != nil {
		return nil, err
	}
	g, err := openBuses(specs, canbus.PortOptions{BaudRate: runOpts.baud, Bitrate: runOpts.bitrate}, openChannel)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// collectFingerprint watches bus for d and records every frame seen on
// mainBus. It returns early, with what it has, if ctx ends or the
// subscription closes.
func collectFingerprint(ctx context.Context, bus canbus.Bus, mainBus uint8, d time.Duration) vehicle.Fingerprint {
	var fp vehicle.Fingerprint
	if d <= 0 {
		return fp
	}
	id, frames := bus.Subscribe()
	defer bus.Unsubscribe(id)

	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fp
		case <-timer.C:
			return fp
		case f, ok := <-frames:
			if !ok {
				return fp
			}
			fp.Observe(f, mainBus)
		}
	}
}

// monitorBus runs the bus IO loop and cancels the run when it stops, for
// any reason: without input the controller would act on stale state.
func monitorBus(ctx context.Context, cancel context.CancelFunc, bus canbus.Bus) {
	defer cancel()
	if err := bus.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("CAN monitor failed: %v", err)
	}
	log.Print("monitor routine terminated")
}

func runController(ctx context.Context) error {
	cfg, err := loadConfig(runOpts.configPath)
	if err != nil {
		return err
	}

	bus, err := openRunBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := bus.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CAN: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the adapters
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorBus(ctx, cancel, bus)
	}()

	fp := collectFingerprint(ctx, bus, ford.BusPowertrain, runOpts.fingerprintTime)
	log.Printf("fingerprint: %d addresses on the powertrain bus", len(fp.Main))

	vi, err := ford.New(vehicle.Model(runOpts.model), fp, cfg)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	params := vi.Params()
	log.Printf("vehicle %s: %s transmission, bsm=%v, radar unavailable=%v",
		ford.DisplayName(params.Model), params.TransmissionType, params.EnableBsm, params.RadarUnavailable)

	opts := pipeline.Options{
		Interval:    cfg.GetControlInterval(),
		RecordEvery: cfg.GetRecordEvery(),
	}

	var store *db.DB
	var sessionID string
	if runOpts.dbPath != "" {
		store, err = db.NewDB(runOpts.dbPath)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()

		sess, err := store.StartSession(string(params.Model), params, time.Now())
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		sessionID = sess.ID
		defer func() {
			if err := store.EndSession(sessionID, time.Now()); err != nil {
				log.Printf("failed to end session %s: %v", sessionID, err)
			}
		}()
		opts.Recorder = store.Recorder(sessionID)
		log.Printf("recording session %s to %s", sessionID, store.Path())
	}

	p := pipeline.New(vi, bus, opts)

	if runOpts.capturePath != "" {
		w, err := canlog.Create(runOpts.capturePath)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := canlog.Capture(ctx, bus, w, timeutil.RealClock{})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("capture failed: %v", err)
			}
			if err := w.Close(); err != nil {
				log.Printf("failed to close capture: %v", err)
			}
			log.Printf("captured %d frames to %s", w.Count(), runOpts.capturePath)
		}()
	}

	// control loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("control loop failed: %v", err)
		}
		log.Print("control loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(p, store, sessionID, runOpts.units).ServeMux()
		bus.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach db admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    runOpts.listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
				cancel()
			}
		}()

		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server terminated")
	}()

	wg.Wait()
	s := p.Stats()
	log.Printf("stopped after %d cycles: %d frames in, %d out, %d send errors, %d recorded",
		s.Cycles, s.FramesIn, s.FramesOut, s.SendErrors, s.Recorded)
	return nil
}
