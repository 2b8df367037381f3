package ford

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/dbc"
)

// newTestController returns a controller without the radar init batch so
// frame lists contain only the synthesized frames.
func newTestController(t *testing.T, mutate func(*config.ControlConfig)) *CarController {
	t.Helper()
	off := false
	cfg := &config.ControlConfig{RadarInitEnabled: &off}
	if mutate != nil {
		mutate(cfg)
	}
	cc, err := NewCarController(dbc.MustPacker(ptDBC), cfg)
	require.NoError(t, err)
	return cc
}

// decodeSent parses the camera bus frames a controller produced.
func decodeSent(t *testing.T, frames []can.Frame) *dbc.Parser {
	t.Helper()
	p, err := dbc.NewParser(dbc.MustLoad(ptDBC), BusCamera, []dbc.Check{
		{Message: "BrakeSysFeatures"},
		{Message: "EngVehicleSpThrottle2"},
		{Message: "ParkAid_Data"},
	})
	require.NoError(t, err)
	p.Update(frames, 0)
	return p
}

func addresses(frames []can.Frame) []uint32 {
	out := make([]uint32, len(frames))
	for i, f := range frames {
		out[i] = f.Address
	}
	return out
}
