package ford

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canpilot/internal/vehicle"
)

func TestGetParams(t *testing.T) {
	tests := []struct {
		model      vehicle.Model
		wheelbase  float64
		steerRatio float64
		mass       float64
	}{
		{BroncoSportMk1, 2.67, 17.7, 1625 + 136},
		{EscapeMk4, 2.71, 16.7, 1750 + 136},
		{ExplorerMk6, 3.025, 16.8, 2050 + 136},
		{F150Mk14, 3.99288, 17.0, 2275 + 136},
		{FocusMk4, 2.7, 15.0, 1350 + 136},
		{MaverickMk1, 3.076, 17.0, 1650 + 136},
	}
	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			p, err := GetParams(tt.model, vehicle.Fingerprint{})
			require.NoError(t, err)
			assert.Equal(t, "ford", p.Brand)
			assert.Equal(t, tt.wheelbase, p.Wheelbase)
			assert.Equal(t, tt.steerRatio, p.SteerRatio)
			assert.Equal(t, tt.mass, p.Mass)
			assert.InDelta(t, tt.wheelbase*0.44, p.CenterToFront, 1e-12)
			assert.Equal(t, vehicle.SteerControlAngle, p.SteerControlType)
			assert.Equal(t, 0.2, p.SteerActuatorDelay)
			assert.Equal(t, 1.0, p.SteerLimitTimer)
			assert.Equal(t, tt.model == F150Mk14, p.CanFD)
			assert.Equal(t, tt.model == F150Mk14, p.RadarUnavailable)
			assert.NotEmpty(t, DisplayName(tt.model))
		})
	}
	assert.Len(t, Models(), len(tests))
}

func TestGetParamsUnsupported(t *testing.T) {
	_, err := GetParams("FORD_MODEL_T", vehicle.Fingerprint{})
	assert.ErrorIs(t, err, vehicle.ErrUnsupportedModel)
}

func TestTransmissionDetection(t *testing.T) {
	tests := []struct {
		name     string
		fp       vehicle.Fingerprint
		want     vehicle.TransmissionType
		minSpeed float64
	}{
		{"manual", vehicle.Fingerprint{}, vehicle.TransmissionManual, 8.9408},
		{"shift by wire ecu", vehicle.Fingerprint{ECUs: []vehicle.ECU{vehicle.ECUShiftByWire}}, vehicle.TransmissionAutomatic, -1},
		{"gear message", vehicle.Fingerprint{Main: map[uint32]int{0x5A: 8}}, vehicle.TransmissionAutomatic, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := GetParams(EscapeMk4, tt.fp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.TransmissionType)
			assert.InDelta(t, tt.minSpeed, p.MinEnableSpeed, 1e-9)
			assert.Equal(t, tt.minSpeed == -1, p.AutoResumeSng)
		})
	}
}

func TestBlindSpotDetection(t *testing.T) {
	p, err := GetParams(MaverickMk1, vehicle.Fingerprint{Main: map[uint32]int{0x3A6: 8}})
	require.NoError(t, err)
	assert.False(t, p.EnableBsm)

	p, err = GetParams(MaverickMk1, vehicle.Fingerprint{Main: map[uint32]int{0x3A6: 8, 0x3A7: 8}})
	require.NoError(t, err)
	assert.True(t, p.EnableBsm)
}
