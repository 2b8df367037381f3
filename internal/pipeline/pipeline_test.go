package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/canbus"
	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/db"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/ford"
	"github.com/banshee-data/canpilot/internal/timeutil"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// stubVehicle counts frames per cycle and echoes the intent. Its decoder
// is ready once more than waitFor batches have been ingested.
type stubVehicle struct {
	batches  [][]can.Frame
	intents  []vehicle.CarControl
	waitFor  int
	radarOK  bool
	out      []can.Frame
	lastSeen int64

	// radarOn, when set, decides per tracker call (counted from 1) whether
	// a radar snapshot is produced.
	radarOn    func(n int) bool
	radarCalls int
}

func (s *stubVehicle) Params() vehicle.CarParams       { return vehicle.CarParams{Model: "STUB"} }
func (s *stubVehicle) Decoder() vehicle.StateDecoder   { return stubDecoder{s} }
func (s *stubVehicle) Encoder() vehicle.CommandEncoder { return stubEncoder{s} }
func (s *stubVehicle) Tracker() vehicle.RadarTracker   { return stubTracker{s} }

type stubDecoder struct{ s *stubVehicle }

func (d stubDecoder) Ingest(frames []can.Frame, nanos int64) {
	d.s.batches = append(d.s.batches, frames)
	d.s.lastSeen = nanos
}

func (d stubDecoder) Ready() bool { return len(d.s.batches) > d.s.waitFor }

func (d stubDecoder) Decode() vehicle.CarState {
	last := d.s.batches[len(d.s.batches)-1]
	return vehicle.CarState{VEgo: float64(len(last)), CanValid: true}
}

type stubTracker struct{ s *stubVehicle }

func (t stubTracker) Update([]can.Frame, int64) (vehicle.RadarData, bool) {
	t.s.radarCalls++
	ok := t.s.radarOK
	if t.s.radarOn != nil {
		ok = t.s.radarOn(t.s.radarCalls)
	}
	if !ok {
		return vehicle.RadarData{}, false
	}
	return vehicle.RadarData{Points: []vehicle.RadarPoint{{TrackID: uint64(t.s.radarCalls), Slot: 0x180, DRel: 20}}}, true
}

type stubEncoder struct{ s *stubVehicle }

func (e stubEncoder) Update(cc vehicle.CarControl, cs vehicle.CarState) (vehicle.Actuators, []can.Frame) {
	e.s.intents = append(e.s.intents, cc)
	return cc.Actuators, e.s.out
}

type sendLog struct {
	mu     sync.Mutex
	frames []can.Frame
	err    error
}

func (l *sendLog) Send(f can.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.frames = append(l.frames, f)
	return nil
}

func (l *sendLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

type memRecorder struct {
	cycles []db.Cycle
	err    error
}

func (r *memRecorder) Record(c db.Cycle) error {
	if r.err != nil {
		return r.err
	}
	r.cycles = append(r.cycles, c)
	return nil
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestStepBatchesFrames(t *testing.T) {
	v := &stubVehicle{out: []can.Frame{can.NewFrame(0x3A8, 2, nil), can.NewFrame(0x415, 2, nil)}}
	out := &sendLog{}
	p := New(v, out, Options{})

	p.Ingest(can.NewFrame(0x100, 0, nil))
	p.Ingest(can.NewFrame(0x101, 0, nil))
	snap := p.Step(t0)
	assert.Equal(t, uint64(1), snap.Cycle)
	assert.Equal(t, 2.0, snap.State.VEgo)
	assert.Equal(t, t0.UnixNano(), v.lastSeen)
	assert.Equal(t, 2, snap.Frames)

	snap = p.Step(t0.Add(10 * time.Millisecond))
	assert.Equal(t, uint64(2), snap.Cycle)
	assert.Equal(t, 0.0, snap.State.VEgo, "queue drained by the previous cycle")
	assert.Len(t, v.batches, 2)
	assert.Equal(t, 4, out.count())

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, uint64(2), stats.FramesIn)
	assert.Equal(t, uint64(4), stats.FramesOut)
	assert.Equal(t, snap, p.Latest())
}

func TestIngestBounded(t *testing.T) {
	p := New(&stubVehicle{}, &sendLog{}, Options{})
	for i := 0; i < maxPending+3; i++ {
		p.Ingest(can.NewFrame(0x100, 0, nil))
	}
	assert.Equal(t, uint64(3), p.Stats().FramesDropped)
	assert.Equal(t, float64(maxPending), p.Step(t0).State.VEgo)
}

func TestCancelIsConsumed(t *testing.T) {
	v := &stubVehicle{}
	p := New(v, &sendLog{}, Options{})

	p.SetIntent(vehicle.CarControl{Enabled: true, CruiseControl: vehicle.CruiseControl{Cancel: true}})
	p.Step(t0)
	p.Step(t0)

	require.Len(t, v.intents, 2)
	assert.True(t, v.intents[0].CruiseControl.Cancel)
	assert.False(t, v.intents[1].CruiseControl.Cancel)
	assert.True(t, v.intents[1].Enabled, "the rest of the intent persists")
	assert.False(t, p.Intent().CruiseControl.Cancel)
}

func TestRadarSnapshotPersists(t *testing.T) {
	v := &stubVehicle{radarOK: true}
	p := New(v, &sendLog{}, Options{})

	snap := p.Step(t0)
	require.Len(t, snap.Radar.Points, 1)
	assert.Equal(t, t0.UnixNano(), snap.RadarNanos)

	v.radarOK = false
	snap = p.Step(t0.Add(time.Second))
	assert.Len(t, snap.Radar.Points, 1, "previous snapshot is kept")
	assert.Equal(t, t0.UnixNano(), snap.RadarNanos)
}

func TestSendErrorsCounted(t *testing.T) {
	v := &stubVehicle{out: []can.Frame{can.NewFrame(0x3A8, 2, nil)}}
	out := &sendLog{err: canbus.ErrNoBus}
	p := New(v, out, Options{})

	p.Step(t0)
	p.Step(t0)
	out.err = nil
	p.Step(t0)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.SendErrors)
	assert.Equal(t, uint64(1), stats.FramesOut)
}

func TestRecordEvery(t *testing.T) {
	v := &stubVehicle{radarOK: true}
	rec := &memRecorder{}
	p := New(v, &sendLog{}, Options{Recorder: rec, RecordEvery: 3})

	p.SetIntent(vehicle.CarControl{Enabled: true})
	for i := 0; i < 7; i++ {
		p.Step(t0.Add(time.Duration(i) * 10 * time.Millisecond))
	}
	require.Len(t, rec.cycles, 2)
	assert.Equal(t, t0.Add(20*time.Millisecond).UnixNano(), rec.cycles[0].Nanos)
	assert.True(t, rec.cycles[0].Enabled)
	assert.True(t, rec.cycles[0].RadarOK)
	assert.Equal(t, uint64(2), p.Stats().Recorded)

	rec.err = errors.New("disk full")
	for i := 0; i < 3; i++ {
		p.Step(t0)
	}
	assert.Equal(t, uint64(1), p.Stats().RecordErrors)
}

func TestRecordsRadarBetweenSamples(t *testing.T) {
	// 20 Hz radar against 100 Hz cycles sampled every 10th: the batches
	// never land on a sampled cycle
	v := &stubVehicle{radarOn: func(n int) bool { return n%5 == 3 }}
	rec := &memRecorder{}
	p := New(v, &sendLog{}, Options{Recorder: rec, RecordEvery: 10})

	for i := 0; i < 1000; i++ {
		p.Step(t0.Add(time.Duration(i) * 10 * time.Millisecond))
	}
	require.Len(t, rec.cycles, 100)
	for _, c := range rec.cycles {
		require.True(t, c.RadarOK, "cycle at %d", c.Nanos)
		require.Len(t, c.Radar.Points, 1)
	}
	// cycle 10 carries the batch of cycle 8
	assert.Equal(t, t0.Add(70*time.Millisecond).UnixNano(), rec.cycles[0].RadarNanos)
	assert.Equal(t, t0.Add(90*time.Millisecond).UnixNano(), rec.cycles[0].Nanos)
	assert.Equal(t, uint64(8), rec.cycles[0].Radar.Points[0].TrackID)
}

func TestRadarRecordedOnce(t *testing.T) {
	v := &stubVehicle{radarOn: func(n int) bool { return n == 2 }}
	rec := &memRecorder{}
	p := New(v, &sendLog{}, Options{Recorder: rec, RecordEvery: 3})

	for i := 0; i < 9; i++ {
		p.Step(t0.Add(time.Duration(i) * 10 * time.Millisecond))
	}
	require.Len(t, rec.cycles, 3)
	assert.True(t, rec.cycles[0].RadarOK)
	assert.False(t, rec.cycles[1].RadarOK, "already stored")
	assert.False(t, rec.cycles[2].RadarOK)

	// a failed write leaves the snapshot pending
	v.radarOn = func(n int) bool { return n == 10 }
	rec.err = errors.New("disk full")
	for i := 0; i < 3; i++ {
		p.Step(t0)
	}
	rec.err = nil
	for i := 0; i < 3; i++ {
		p.Step(t0)
	}
	require.Len(t, rec.cycles, 4)
	assert.True(t, rec.cycles[3].RadarOK)
}

func TestStepWaitsForDecoder(t *testing.T) {
	v := &stubVehicle{waitFor: 2, radarOK: true, out: []can.Frame{can.NewFrame(0x3A8, 2, nil)}}
	out := &sendLog{}
	rec := &memRecorder{}
	p := New(v, out, Options{Recorder: rec, RecordEvery: 1})
	p.SetIntent(vehicle.CarControl{Enabled: true, CruiseControl: vehicle.CruiseControl{Cancel: true}})

	for i := 0; i < 2; i++ {
		p.Ingest(can.NewFrame(0x100, 0, nil))
		snap := p.Step(t0.Add(time.Duration(i) * 10 * time.Millisecond))
		assert.False(t, snap.Ready)
		assert.Zero(t, snap.Frames)
		assert.Zero(t, snap.State)
		assert.Len(t, snap.Radar.Points, 1, "radar is tracked while waiting")
	}
	assert.Empty(t, v.intents, "encoder not run")
	assert.Zero(t, out.count())
	assert.Empty(t, rec.cycles)
	assert.True(t, p.Intent().CruiseControl.Cancel, "cancel kept until it can be sent")

	p.Ingest(can.NewFrame(0x100, 0, nil))
	snap := p.Step(t0.Add(20 * time.Millisecond))
	assert.True(t, snap.Ready)
	assert.Equal(t, 1.0, snap.State.VEgo)
	assert.Equal(t, 1, out.count())
	require.Len(t, v.intents, 1)
	assert.True(t, v.intents[0].CruiseControl.Cancel)
	assert.False(t, p.Intent().CruiseControl.Cancel)
	require.Len(t, rec.cycles, 1)
	assert.True(t, rec.cycles[0].RadarOK)

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Cycles)
	assert.Equal(t, uint64(2), stats.Waiting)
}

// chanBus feeds Run from a channel and records sent frames.
type chanBus struct {
	canbus.Bus
	ch chan can.Frame
}

func (b *chanBus) Subscribe() (string, chan can.Frame) { return "sub", b.ch }
func (b *chanBus) Unsubscribe(string)                  {}

func TestRunStepsOnTicks(t *testing.T) {
	v := &stubVehicle{}
	clock := timeutil.NewMockClock(t0)
	p := New(v, &sendLog{}, Options{Clock: clock, Interval: 10 * time.Millisecond})
	bus := &chanBus{ch: make(chan can.Frame)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, bus) }()

	require.Eventually(t, func() bool { return len(clock.Tickers()) == 1 }, time.Second, time.Millisecond)
	bus.ch <- can.NewFrame(0x100, 0, nil)
	require.Eventually(t, func() bool { return p.Stats().FramesIn == 1 }, time.Second, time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	require.Eventually(t, func() bool { return p.Latest().Cycle == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1.0, p.Latest().State.VEgo)
	assert.Equal(t, t0.Add(10*time.Millisecond).UnixNano(), p.Latest().Nanos)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunEndsWhenBusCloses(t *testing.T) {
	p := New(&stubVehicle{}, &sendLog{}, Options{Clock: timeutil.NewMockClock(t0)})
	bus := &chanBus{ch: make(chan can.Frame)}
	close(bus.ch)
	assert.NoError(t, p.Run(context.Background(), bus))
}

// fordStateFrames is one of every message the Ford decoder reads.
func fordStateFrames() []can.Frame {
	packer := dbc.MustPacker("ford_lincoln_base_pt")
	var frames []can.Frame
	for _, n := range []string{
		"BrakeSysFeatures", "EngVehicleSpThrottle", "EngBrakeData",
		"Steering_Wheel_Data2_FD1", "TransGearData", "BodyInfo_3_FD1",
		"Steering_Buttons", "RCMStatusMessage2_FD1", "DesiredTorqBrk",
	} {
		frames = append(frames, packer.MustPack(n, ford.BusPowertrain, nil))
	}
	for _, n := range []string{"EPAS_INFO", "Steering_Sensor"} {
		frames = append(frames, packer.MustPack(n, ford.BusCamera, nil))
	}
	return frames
}

func TestStepWithFord(t *testing.T) {
	off := false
	vi, err := ford.New(ford.EscapeMk4, vehicle.Fingerprint{}, &config.ControlConfig{RadarInitEnabled: &off})
	require.NoError(t, err)
	out := &sendLog{}
	p := New(vi, out, Options{})
	p.SetIntent(vehicle.CarControl{Enabled: true, CruiseControl: vehicle.CruiseControl{Cancel: true}})

	// nothing is decoded or sent before the powertrain has been heard
	snap := p.Step(t0)
	assert.False(t, snap.Ready)
	assert.Zero(t, out.count())

	frames := fordStateFrames()
	for _, f := range frames[:len(frames)-1] {
		p.Ingest(f)
	}
	snap = p.Step(t0.Add(10 * time.Millisecond))
	assert.False(t, snap.Ready, "Steering_Sensor still missing")
	assert.Zero(t, out.count())

	p.Ingest(frames[len(frames)-1])
	snap = p.Step(t0.Add(20 * time.Millisecond))
	assert.True(t, snap.Ready)
	assert.Equal(t, 4, snap.Frames, "cancel plus the three periodic frames")
	snap = p.Step(t0.Add(30 * time.Millisecond))
	assert.Equal(t, 3, snap.Frames)
	assert.Equal(t, 7, out.count())
	assert.Equal(t, uint64(2), p.Stats().Waiting)
	assert.Equal(t, "FORD_ESCAPE_MK4", string(p.Params().Model))
}
