package ford

import (
	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// Buses of a Ford harness.
const (
	BusPowertrain uint8 = 0
	BusRadar      uint8 = 1
	BusCamera     uint8 = 2
)

// Parking-aid system states and requests.
const (
	sappStateOff = 1
	sappStateOn  = 2

	sappNoRequest = 0
	sappRequest   = 1
)

// cancelButton presses the steering wheel cruise cancel button.
func cancelButton(p *dbc.Packer) can.Frame {
	return p.MustPack("Steering_Buttons", BusPowertrain, map[string]float64{
		"Cancel": 1,
	})
}

// parkAidData requests an external steering angle. Angle control is only
// requested while steering is enabled and the vehicle is moving; requests
// at standstill make the wheel drift.
func parkAidData(p *dbc.Packer, enabled bool, angleDeg float64, standstill bool) can.Frame {
	state, req := sappStateOff, sappNoRequest
	if enabled && !standstill {
		state, req = sappStateOn, sappRequest
	}
	return p.MustPack("ParkAid_Data", BusCamera, map[string]float64{
		"ApaSys_D_Stat":        float64(state),
		"EPASExtAngleStatReq":  float64(req),
		"ExtSteeringAngleReq2": angleDeg,
	})
}

// engVehicleSpThrottle2 reports engine speed and gear direction.
func engVehicleSpThrottle2(p *dbc.Packer, frame uint64, speedKph float64, gear vehicle.GearShifter) can.Frame {
	reverse, trailer := 1.0, 0.0
	if gear == vehicle.GearReverse {
		reverse, trailer = 3, 1
	}
	cnt := RollingCounter(frame)
	return p.MustPack("EngVehicleSpThrottle2", BusCamera, map[string]float64{
		"VehVTrlrAid_B_Avail": trailer,
		"VehVActlEng_No_Cs":   float64(Checksum(cnt, speedKph)),
		"VehVActlEng_No_Cnt":  float64(cnt),
		"VehVActlEng_D_Qf":    dataQualifier,
		"Veh_V_ActlEng":       speedKph,
		"GearRvrse_D_Actl":    reverse,
	})
}

// brakeSysFeatures reports brake-derived vehicle speed.
func brakeSysFeatures(p *dbc.Packer, frame uint64, speedKph float64) can.Frame {
	cnt := RollingCounter(frame)
	return p.MustPack("BrakeSysFeatures", BusCamera, map[string]float64{
		"LsmcBrkDecel_D_Stat": 4,
		"VehVActlBrk_No_Cs":   float64(Checksum(cnt, speedKph)),
		"Veh_V_ActlBrk":       speedKph,
		"VehVActlBrk_No_Cnt":  float64(cnt),
		"VehVActlBrk_D_Qf":    dataQualifier,
	})
}
