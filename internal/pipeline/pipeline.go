// Package pipeline drives one vehicle.Interface at a fixed control rate:
// frames received between ticks are batched, decoded and tracked, the
// encoder's output is sent, and every Nth cycle is recorded.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/canbus"
	"github.com/banshee-data/canpilot/internal/db"
	"github.com/banshee-data/canpilot/internal/monitoring"
	"github.com/banshee-data/canpilot/internal/timeutil"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// maxPending bounds the frames queued between two cycles.
const maxPending = 4096

var logf = monitoring.Component("pipeline")

// Sender puts frames on the bus.
type Sender interface {
	Send(can.Frame) error
}

// Recorder stores sampled cycles.
type Recorder interface {
	Record(db.Cycle) error
}

// Options configures a Pipeline. Zero values pick the real clock, a 10 ms
// interval and no recording.
type Options struct {
	Clock       timeutil.Clock
	Interval    time.Duration
	Recorder    Recorder
	RecordEvery int
}

// Snapshot is the outcome of the most recent cycle.
type Snapshot struct {
	Cycle uint64 `json:"cycle"`
	Nanos int64  `json:"ts_unix_nanos"`
	// Ready is false while the decoder still waits for input; State, Sent
	// and Frames are then zero.
	Ready  bool               `json:"ready"`
	Intent vehicle.CarControl `json:"intent"`
	State  vehicle.CarState   `json:"state"`
	Sent   vehicle.Actuators  `json:"sent"`
	Frames int                `json:"frames"`
	// Radar is the last complete radar snapshot, which may be older than
	// this cycle.
	Radar      vehicle.RadarData `json:"radar"`
	RadarNanos int64             `json:"radar_ts_unix_nanos"`
}

// Stats counts pipeline activity.
type Stats struct {
	Cycles        uint64 `json:"cycles"`
	Waiting       uint64 `json:"waiting"` // cycles spent waiting for input
	FramesIn      uint64 `json:"frames_in"`
	FramesDropped uint64 `json:"frames_dropped"`
	FramesOut     uint64 `json:"frames_out"`
	SendErrors    uint64 `json:"send_errors"`
	Recorded      uint64 `json:"recorded"`
	RecordErrors  uint64 `json:"record_errors"`
}

type Pipeline struct {
	vi  vehicle.Interface
	out Sender
	rec Recorder

	clock       timeutil.Clock
	interval    time.Duration
	recordEvery uint64

	// stepMu serialises cycles; the decoder, tracker and encoder are not
	// safe for concurrent use. It also guards ready and the radar
	// sequence numbers.
	stepMu           sync.Mutex
	ready            bool
	readyKnown       bool
	radarSeq         uint64
	recordedRadarSeq uint64

	mu        sync.Mutex
	pending   []can.Frame
	intent    vehicle.CarControl
	latest    Snapshot
	stats     Stats
	sendFails bool
}

// New builds a pipeline around vi that sends through out.
func New(vi vehicle.Interface, out Sender, opts Options) *Pipeline {
	p := &Pipeline{
		vi:          vi,
		out:         out,
		rec:         opts.Recorder,
		clock:       opts.Clock,
		interval:    opts.Interval,
		recordEvery: uint64(opts.RecordEvery),
	}
	if p.clock == nil {
		p.clock = timeutil.RealClock{}
	}
	if p.interval <= 0 {
		p.interval = 10 * time.Millisecond
	}
	if p.recordEvery == 0 {
		p.recordEvery = 1
	}
	return p
}

// Ingest queues a received frame for the next cycle.
func (p *Pipeline) Ingest(f can.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FramesIn++
	if len(p.pending) >= maxPending {
		p.stats.FramesDropped++
		return
	}
	p.pending = append(p.pending, f)
}

// SetIntent replaces the control intent used from the next cycle on.
func (p *Pipeline) SetIntent(cc vehicle.CarControl) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intent = cc
}

// Intent returns the current control intent.
func (p *Pipeline) Intent() vehicle.CarControl {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intent
}

// Latest returns the most recent cycle snapshot.
func (p *Pipeline) Latest() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Params returns the parameters of the driven vehicle.
func (p *Pipeline) Params() vehicle.CarParams { return p.vi.Params() }

// Step runs one control cycle over the frames queued so far. Until the
// decoder has seen every message it reads, the cycle only ingests: nothing
// is decoded or sent. A cancel request is consumed by the cycle that sends
// it.
func (p *Pipeline) Step(now time.Time) Snapshot {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	p.mu.Lock()
	frames := p.pending
	p.pending = nil
	p.mu.Unlock()

	nanos := now.UnixNano()
	dec := p.vi.Decoder()
	dec.Ingest(frames, nanos)
	radar, radarOK := p.vi.Tracker().Update(frames, nanos)
	ready := dec.Ready()
	p.logReadiness(dec, ready)

	p.mu.Lock()
	intent := p.intent
	if ready {
		p.intent.CruiseControl.Cancel = false
	}
	prev := p.latest
	p.mu.Unlock()

	var (
		cs   vehicle.CarState
		sent vehicle.Actuators
		out  []can.Frame
	)
	if ready {
		cs = dec.Decode()
		sent, out = p.vi.Encoder().Update(intent, cs)
	}

	var sendErrs uint64
	for _, f := range out {
		if err := p.out.Send(f); err != nil {
			if sendErrs == 0 && !p.sendFailing() {
				logf("send 0x%03X on bus %d failed: %v", f.Address, f.Bus, err)
			}
			sendErrs++
		}
	}

	snap := Snapshot{
		Cycle:      prev.Cycle + 1,
		Nanos:      nanos,
		Ready:      ready,
		Intent:     intent,
		State:      cs,
		Sent:       sent,
		Frames:     len(out),
		Radar:      prev.Radar,
		RadarNanos: prev.RadarNanos,
	}
	if radarOK {
		snap.Radar = radar
		snap.RadarNanos = nanos
		p.radarSeq++
	}

	p.mu.Lock()
	p.latest = snap
	p.stats.Cycles++
	if !ready {
		p.stats.Waiting++
	}
	p.stats.FramesOut += uint64(len(out)) - sendErrs
	p.stats.SendErrors += sendErrs
	if failing := sendErrs > 0; failing != p.sendFails {
		if !failing {
			logf("sends recovered")
		}
		p.sendFails = failing
	}
	p.mu.Unlock()

	if ready && p.rec != nil && snap.Cycle%p.recordEvery == 0 {
		p.record(snap, out)
	}
	return snap
}

// record stores a sampled cycle. The latest radar snapshot goes with it
// when it has not been stored yet, so radar batches that land between
// samples are not lost.
func (p *Pipeline) record(snap Snapshot, out []can.Frame) {
	c := db.Cycle{
		Nanos:   snap.Nanos,
		State:   snap.State,
		Enabled: snap.Intent.Enabled,
		Sent:    snap.Sent,
		Frames:  out,
	}
	if p.radarSeq != p.recordedRadarSeq {
		c.Radar = snap.Radar
		c.RadarNanos = snap.RadarNanos
		c.RadarOK = true
	}
	err := p.rec.Record(c)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.stats.RecordErrors == 0 {
			logf("record cycle %d failed: %v", snap.Cycle, err)
		}
		p.stats.RecordErrors++
		return
	}
	p.stats.Recorded++
	if c.RadarOK {
		p.recordedRadarSeq = p.radarSeq
	}
}

// logReadiness logs when the decoder starts or stops waiting for input.
func (p *Pipeline) logReadiness(dec vehicle.StateDecoder, ready bool) {
	if p.readyKnown && ready == p.ready {
		return
	}
	p.ready, p.readyKnown = ready, true
	if ready {
		logf("vehicle data complete, control active")
		return
	}
	if m, ok := dec.(interface{ Missing() []string }); ok {
		logf("waiting for vehicle data: %v", m.Missing())
		return
	}
	logf("waiting for vehicle data")
}

func (p *Pipeline) sendFailing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendFails
}

// Run subscribes to bus and steps once per interval until ctx is done or
// the subscription closes.
func (p *Pipeline) Run(ctx context.Context, bus canbus.Bus) error {
	id, frames := bus.Subscribe()
	defer bus.Unsubscribe(id)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	logf("running at %v per cycle", p.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			p.Ingest(f)
		case now := <-ticker.C():
			p.Step(now)
		}
	}
}
