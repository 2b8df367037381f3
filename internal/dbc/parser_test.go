package dbc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canpilot/internal/can"
)

func TestPackUnknown(t *testing.T) {
	t.Parallel()

	p := MustPacker("ford_lincoln_base_pt")
	_, err := p.Pack("Nope", 0, nil)
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = p.Pack("Steering_Buttons", 0, map[string]float64{"Nope": 1})
	assert.ErrorIs(t, err, ErrUnknownSignal)
	assert.Panics(t, func() { MustPacker("nope") })
}

func TestPackParseRoundTrip(t *testing.T) {
	t.Parallel()

	db := MustLoad("ford_lincoln_base_pt")
	packer := NewPacker(db)
	parser, err := NewParser(db, 0, []Check{{Message: "BrakeSysFeatures", Frequency: 50}})
	require.NoError(t, err)

	f, err := packer.Pack("BrakeSysFeatures", 0, map[string]float64{
		"Veh_V_ActlBrk":      36.0,
		"VehVActlBrk_D_Qf":   3,
		"VehVActlBrk_No_Cnt": 7,
		"VehVActlBrk_No_Cs":  200,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x415), f.Address)
	assert.Len(t, f.Data, 8)

	updated := parser.Update([]can.Frame{f}, 0)
	assert.Equal(t, []uint32{0x415}, updated)
	assert.InDelta(t, 36.0, parser.Value("BrakeSysFeatures", "Veh_V_ActlBrk"), 1e-9)
	assert.Equal(t, 3.0, parser.Value("BrakeSysFeatures", "VehVActlBrk_D_Qf"))
	assert.Equal(t, 7.0, parser.Value("BrakeSysFeatures", "VehVActlBrk_No_Cnt"))
	assert.Equal(t, 200.0, parser.Value("BrakeSysFeatures", "VehVActlBrk_No_Cs"))
	assert.True(t, parser.Seen("BrakeSysFeatures"))
}

func TestParserIgnoresOtherBusAndShortFrames(t *testing.T) {
	t.Parallel()

	db := MustLoad("ford_lincoln_base_pt")
	parser, err := NewParser(db, 2, []Check{{Message: "Steering_Sensor"}})
	require.NoError(t, err)

	frames := []can.Frame{
		{Address: 0x76, Bus: 0, Data: make([]byte, 8)},
		{Address: 0x76, Bus: 2, Data: []byte{1}},
		{Address: 0x999, Bus: 2, Data: make([]byte, 8)},
	}
	assert.Empty(t, parser.Update(frames, 0))
	assert.False(t, parser.Seen("Steering_Sensor"))

	_, err = parser.Lookup("Steering_Sensor", "Nope")
	assert.ErrorIs(t, err, ErrUnknownSignal)
	_, err = parser.Lookup("EPAS_INFO", "SteeringColumnTorque")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestParserUpdatedAddressesSorted(t *testing.T) {
	t.Parallel()

	db := MustLoad("FORD_CADS")
	checks := []Check{{Message: "RADAR_TRACK_181"}, {Message: "RADAR_TRACK_180"}, {Message: "RADAR_SCORE_19F"}}
	parser, err := NewParser(db, 1, checks)
	require.NoError(t, err)

	frames := []can.Frame{
		{Address: 0x19F, Bus: 1, Data: make([]byte, 8)},
		{Address: 0x181, Bus: 1, Data: make([]byte, 8)},
		{Address: 0x180, Bus: 1, Data: make([]byte, 8)},
		{Address: 0x181, Bus: 1, Data: make([]byte, 8)},
	}
	assert.Equal(t, []uint32{0x180, 0x181, 0x19F}, parser.Update(frames, 0))
}

func TestParserWatchdog(t *testing.T) {
	t.Parallel()

	db := MustLoad("ford_lincoln_base_pt")
	packer := NewPacker(db)
	parser, err := NewParser(db, 0, []Check{{Message: "Steering_Buttons", Frequency: 100}})
	require.NoError(t, err)

	assert.False(t, parser.CanValid(), "invalid before any traffic")

	f := packer.MustPack("Steering_Buttons", 0, nil)
	parser.Update([]can.Frame{f}, 0)
	assert.True(t, parser.CanValid())

	// 100 Hz message goes stale after 100ms; tolerate four stale updates.
	now := int64(0)
	for i := 0; i < maxInvalidCount-1; i++ {
		now += int64(200 * time.Millisecond)
		parser.Update(nil, now)
		assert.True(t, parser.CanValid(), "stale update %d", i+1)
	}
	now += int64(200 * time.Millisecond)
	parser.Update(nil, now)
	assert.False(t, parser.CanValid())

	parser.Update([]can.Frame{f}, now)
	assert.True(t, parser.CanValid(), "fresh traffic restores validity")
}
