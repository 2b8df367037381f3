package ford

import (
	"fmt"
	"sort"

	"github.com/banshee-data/canpilot/internal/units"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// Supported models.
const (
	BroncoSportMk1 vehicle.Model = "FORD_BRONCO_SPORT_MK1"
	EscapeMk4      vehicle.Model = "FORD_ESCAPE_MK4"
	ExplorerMk6    vehicle.Model = "FORD_EXPLORER_MK6"
	F150Mk14       vehicle.Model = "FORD_F_150_MK14"
	FocusMk4       vehicle.Model = "FORD_FOCUS_MK4"
	MaverickMk1    vehicle.Model = "FORD_MAVERICK_MK1"
)

// stdCargoKg is added to every curb weight.
const stdCargoKg = 136.0

type modelSpec struct {
	name       string
	wheelbase  float64
	steerRatio float64
	curbMass   float64
	canFD      bool
	noRadar    bool
}

var models = map[vehicle.Model]modelSpec{
	BroncoSportMk1: {name: "Ford Bronco Sport 1st Gen", wheelbase: 2.67, steerRatio: 17.7, curbMass: 1625},
	EscapeMk4:      {name: "Ford Escape 4th Gen", wheelbase: 2.71, steerRatio: 16.7, curbMass: 1750},
	ExplorerMk6:    {name: "Ford Explorer 6th Gen", wheelbase: 3.025, steerRatio: 16.8, curbMass: 2050},
	// SuperCrew wheelbase; the radar is not decoded on this platform yet.
	F150Mk14:    {name: "Ford F-150 14th Gen", wheelbase: 3.99288, steerRatio: 17.0, curbMass: 2275, canFD: true, noRadar: true},
	FocusMk4:    {name: "Ford Focus 4th Gen", wheelbase: 2.7, steerRatio: 15.0, curbMass: 1350},
	MaverickMk1: {name: "Ford Maverick 1st Gen", wheelbase: 3.076, steerRatio: 17.0, curbMass: 1650},
}

// Addresses used to detect optional equipment on the main bus.
const (
	addrGearShiftByWire = 0x5A
	addrSideDetectL     = 0x3A6
	addrSideDetectR     = 0x3A7
)

// Models lists the supported models in name order.
func Models() []vehicle.Model {
	out := make([]vehicle.Model, 0, len(models))
	for m := range models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DisplayName returns the marketing name of a model.
func DisplayName(m vehicle.Model) string {
	return models[m].name
}

// GetParams builds the CarParams of model from the equipment seen in fp.
func GetParams(model vehicle.Model, fp vehicle.Fingerprint) (vehicle.CarParams, error) {
	spec, ok := models[model]
	if !ok {
		return vehicle.CarParams{}, fmt.Errorf("%w: %q", vehicle.ErrUnsupportedModel, model)
	}

	p := vehicle.CarParams{
		Brand:              "ford",
		Model:              model,
		Wheelbase:          spec.wheelbase,
		SteerRatio:         spec.steerRatio,
		Mass:               spec.curbMass + stdCargoKg,
		CenterToFront:      spec.wheelbase * 0.44,
		SteerControlType:   vehicle.SteerControlAngle,
		SteerActuatorDelay: 0.2,
		SteerLimitTimer:    1.0,
		MinSteerSpeed:      0,
		MinEnableSpeed:     -1,
		RadarUnavailable:   spec.noRadar,
		CanFD:              spec.canFD,
	}

	if fp.HasECU(vehicle.ECUShiftByWire) || fp.HasAddress(addrGearShiftByWire) {
		p.TransmissionType = vehicle.TransmissionAutomatic
	} else {
		p.TransmissionType = vehicle.TransmissionManual
		p.MinEnableSpeed = 20.0 * units.MPHToMPS
	}
	p.EnableBsm = fp.HasAddress(addrSideDetectL) && fp.HasAddress(addrSideDetectR)
	p.AutoResumeSng = p.MinEnableSpeed == -1
	return p, nil
}
