package ford

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

type ptFrames struct {
	t      *testing.T
	packer *dbc.Packer
	frames []can.Frame
}

func newPTFrames(t *testing.T) *ptFrames {
	return &ptFrames{t: t, packer: dbc.MustPacker(ptDBC)}
}

func (p *ptFrames) add(msg string, bus uint8, values map[string]float64) *ptFrames {
	f, err := p.packer.Pack(msg, bus, values)
	require.NoError(p.t, err)
	p.frames = append(p.frames, f)
	return p
}

func newTestCarState(t *testing.T) *CarState {
	t.Helper()
	cs, err := NewCarState(dbc.MustLoad(ptDBC), 2.0)
	require.NoError(t, err)
	return cs
}

func TestCarStateDecode(t *testing.T) {
	frames := newPTFrames(t).
		add("BrakeSysFeatures", BusPowertrain, map[string]float64{"Veh_V_ActlBrk": 36.0}).
		add("EngVehicleSpThrottle", BusPowertrain, map[string]float64{"ApedPos_Pc_ActlArb": 12.5}).
		add("EngBrakeData", BusPowertrain, map[string]float64{"BpedDrvAppl_D_Actl": 2, "CcStat_D_Actl": 5, "Veh_V_DsplyCcSet": 45}).
		add("TransGearData", BusPowertrain, map[string]float64{"GearLvrPos_D_Actl": 3}).
		add("BodyInfo_3_FD1", BusPowertrain, map[string]float64{"DrStatRr_B_Actl": 1}).
		add("RCMStatusMessage2_FD1", BusPowertrain, map[string]float64{"FirstRowBuckleDriver": 2}).
		add("Steering_Buttons", BusPowertrain, map[string]float64{"Left_Turn_Light": 1}).
		add("Steering_Wheel_Data2_FD1", BusPowertrain, map[string]float64{"SteWhlSwtchOk_B_Stat": 1}).
		add("DesiredTorqBrk", BusPowertrain, map[string]float64{"VehStop_D_Stat": 0}).
		add("EPAS_INFO", BusCamera, map[string]float64{"SteeringColumnTorque": 1.5, "SAPPAngleControlStat1": 2}).
		add("Steering_Sensor", BusCamera, map[string]float64{"StePinRelInit_An_Sns": 12.5, "offset": 2.5}).
		frames

	got := newTestCarState(t).Update(frames, 0)

	assert.InDelta(t, 10.0, got.VEgoRaw, 1e-9)
	assert.InDelta(t, 10.0, got.VEgo, 1e-9, "filter seeds on first large jump")
	assert.InDelta(t, 0.0, got.AEgo, 1e-9)
	assert.False(t, got.Standstill)
	assert.True(t, got.GasPressed)
	assert.True(t, got.BrakePressed)
	assert.True(t, got.Cruise.Enabled)
	assert.True(t, got.Cruise.Available)
	assert.InDelta(t, 20.1168, got.Cruise.Speed, 1e-9)
	assert.Equal(t, vehicle.GearDrive, got.GearShifter)
	assert.True(t, got.DoorOpen)
	assert.True(t, got.SeatbeltUnlatched)
	assert.True(t, got.LeftBlinker)
	assert.False(t, got.RightBlinker)
	assert.True(t, got.GenericToggle)
	assert.InDelta(t, 10.0, got.SteeringAngleDeg, 1e-6)
	assert.InDelta(t, 2.5, got.SteeringAngleOffsetDeg, 1e-6)
	assert.InDelta(t, 1.5, got.SteeringTorque, 1e-9)
	assert.False(t, got.SteeringPressed, "never reported")
	assert.Equal(t, 2, got.AngleControlState)
	assert.True(t, got.CanValid)
}

func TestCarStateDefaults(t *testing.T) {
	// before traffic every signal reads zero
	got := newTestCarState(t).Update(nil, 0)
	assert.Equal(t, vehicle.GearPark, got.GearShifter)
	assert.False(t, got.DoorOpen)
	assert.False(t, got.Cruise.Available)
	assert.False(t, got.GasPressed)
	assert.False(t, got.SeatbeltUnlatched)
}

func TestCarStateReady(t *testing.T) {
	cs := newTestCarState(t)
	assert.False(t, cs.Ready())
	assert.Len(t, cs.Missing(), len(ptMessages)+len(camMessages))

	cs.Ingest(newPTFrames(t).
		add("BrakeSysFeatures", BusPowertrain, map[string]float64{"Veh_V_ActlBrk": 36.0}).
		add("EPAS_INFO", BusCamera, nil).
		frames, 0)
	assert.False(t, cs.Ready())
	assert.NotContains(t, cs.Missing(), "BrakeSysFeatures")
	assert.NotContains(t, cs.Missing(), "EPAS_INFO")
	assert.Contains(t, cs.Missing(), "Steering_Sensor")

	// the same message on the wrong bus does not count
	cs.Ingest(newPTFrames(t).add("Steering_Sensor", BusPowertrain, nil).frames, 10e6)
	assert.Contains(t, cs.Missing(), "Steering_Sensor")

	b := newPTFrames(t)
	for _, n := range ptMessages {
		b.add(n, BusPowertrain, nil)
	}
	for _, n := range camMessages {
		b.add(n, BusCamera, nil)
	}
	cs.Ingest(b.frames, 20e6)
	assert.True(t, cs.Ready())
	assert.Empty(t, cs.Missing())
}

func TestGearFromLever(t *testing.T) {
	tests := []struct {
		code float64
		want vehicle.GearShifter
	}{
		{0, vehicle.GearPark},
		{1, vehicle.GearReverse},
		{2, vehicle.GearNeutral},
		{3, vehicle.GearDrive},
		{4, vehicle.GearUnknown},
		{15, vehicle.GearUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gearFromLever(tt.code), "code %v", tt.code)
	}
}

func TestCruiseAvailableNotEngaged(t *testing.T) {
	frames := newPTFrames(t).
		add("EngBrakeData", BusPowertrain, map[string]float64{"CcStat_D_Actl": 3}).
		frames
	got := newTestCarState(t).Update(frames, 0)
	assert.True(t, got.Cruise.Available)
	assert.False(t, got.Cruise.Enabled)
}

func TestSpeedFilterSmoothsSmallSteps(t *testing.T) {
	cs := newTestCarState(t)
	speed := func(kph float64) []can.Frame {
		return newPTFrames(t).add("BrakeSysFeatures", BusPowertrain, map[string]float64{"Veh_V_ActlBrk": kph}).frames
	}

	cs.Update(speed(36), 0)
	got := cs.Update(speed(39.6), 10e6) // +1 m/s, below the reset threshold
	assert.InDelta(t, 11.0, got.VEgoRaw, 1e-9)
	assert.Greater(t, got.VEgo, 10.0)
	assert.Less(t, got.VEgo, 11.0)
	assert.Greater(t, got.AEgo, 0.0)

	got = cs.Update(speed(72), 20e6) // jump re-seeds
	assert.InDelta(t, 20.0, got.VEgo, 1e-9)
	assert.Equal(t, got, cs.Last())
}

func TestStandstill(t *testing.T) {
	frames := newPTFrames(t).
		add("DesiredTorqBrk", BusPowertrain, map[string]float64{"VehStop_D_Stat": 1}).
		frames
	assert.True(t, newTestCarState(t).Update(frames, 0).Standstill)
}
