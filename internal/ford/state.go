package ford

import (
	"math"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/kalman"
	"github.com/banshee-data/canpilot/internal/units"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

const (
	ptDBC    = "ford_lincoln_base_pt"
	radarDBC = "FORD_CADS"
)

// cruiseEngaged is the CcStat_D_Actl value of active cruise control.
const cruiseEngaged = 5

var ptMessages = []string{
	"BrakeSysFeatures",
	"EngVehicleSpThrottle",
	"EngBrakeData",
	"Steering_Wheel_Data2_FD1",
	"TransGearData",
	"BodyInfo_3_FD1",
	"Steering_Buttons",
	"RCMStatusMessage2_FD1",
	"DesiredTorqBrk",
}

var camMessages = []string{
	"EPAS_INFO",
	"Steering_Sensor",
}

func subscribe(db *dbc.Database, bus uint8, names []string) (*dbc.Parser, error) {
	checks := make([]dbc.Check, len(names))
	for i, n := range names {
		checks[i] = dbc.Check{Message: n}
	}
	return dbc.NewParser(db, bus, checks)
}

// CarState decodes powertrain and camera bus traffic.
type CarState struct {
	pt  *dbc.Parser
	cam *dbc.Parser

	speedFilter    *kalman.KF1D
	resetThreshold float64

	last vehicle.CarState
}

// NewCarState subscribes to the messages the decoder reads. resetThreshold
// is the jump in raw speed (m/s) that re-seeds the speed filter.
func NewCarState(db *dbc.Database, resetThreshold float64) (*CarState, error) {
	pt, err := subscribe(db, BusPowertrain, ptMessages)
	if err != nil {
		return nil, err
	}
	cam, err := subscribe(db, BusCamera, camMessages)
	if err != nil {
		return nil, err
	}
	return &CarState{
		pt:             pt,
		cam:            cam,
		speedFilter:    kalman.NewSpeedFilter(0),
		resetThreshold: resetThreshold,
	}, nil
}

// Ingest folds frames into the parsers without decoding.
func (s *CarState) Ingest(frames []can.Frame, nanos int64) {
	s.pt.Update(frames, nanos)
	s.cam.Update(frames, nanos)
}

// Ready reports whether every powertrain and camera message has been
// received at least once.
func (s *CarState) Ready() bool {
	return len(s.Missing()) == 0
}

// Missing lists the messages not received yet.
func (s *CarState) Missing() []string {
	var out []string
	for _, n := range ptMessages {
		if !s.pt.Seen(n) {
			out = append(out, n)
		}
	}
	for _, n := range camMessages {
		if !s.cam.Seen(n) {
			out = append(out, n)
		}
	}
	return out
}

// Decode builds a snapshot from the latest values and advances the speed
// filter.
func (s *CarState) Decode() vehicle.CarState {
	s.last = s.decode()
	return s.last
}

// Update is Ingest followed by Decode.
func (s *CarState) Update(frames []can.Frame, nanos int64) vehicle.CarState {
	s.Ingest(frames, nanos)
	return s.Decode()
}

// Last returns the snapshot of the previous Update.
func (s *CarState) Last() vehicle.CarState { return s.last }

func (s *CarState) updateSpeed(raw float64) (float64, float64) {
	if x, _ := s.speedFilter.State(); math.Abs(raw-x) > s.resetThreshold {
		s.speedFilter.Reset(raw, 0)
	}
	v, a := s.speedFilter.Update(raw)
	return math.Max(v, 0), a
}

func (s *CarState) decode() vehicle.CarState {
	pt, cam := s.pt, s.cam
	var ret vehicle.CarState

	ret.SteeringAngleOffsetDeg = cam.Value("Steering_Sensor", "offset")
	ret.SteeringAngleDeg = cam.Value("Steering_Sensor", "StePinRelInit_An_Sns") - ret.SteeringAngleOffsetDeg
	ret.SteeringTorque = cam.Value("EPAS_INFO", "SteeringColumnTorque")
	ret.SteeringPressed = false
	ret.AngleControlState = int(cam.Value("EPAS_INFO", "SAPPAngleControlStat1"))

	ret.GenericToggle = pt.Value("Steering_Wheel_Data2_FD1", "SteWhlSwtchOk_B_Stat") != 0

	ret.VEgoRaw = pt.Value("BrakeSysFeatures", "Veh_V_ActlBrk") * units.KPHToMPS
	ret.VEgo, ret.AEgo = s.updateSpeed(ret.VEgoRaw)
	ret.Standstill = pt.Value("DesiredTorqBrk", "VehStop_D_Stat") == 1

	ret.GasPressed = pt.Value("EngVehicleSpThrottle", "ApedPos_Pc_ActlArb")/100 > 1e-6
	ret.BrakePressed = pt.Value("EngBrakeData", "BpedDrvAppl_D_Actl") == 2

	cc := pt.Value("EngBrakeData", "CcStat_D_Actl")
	ret.Cruise = vehicle.CruiseState{
		Enabled:   cc == cruiseEngaged,
		Available: cc != 0,
		Speed:     pt.Value("EngBrakeData", "Veh_V_DsplyCcSet") * units.MPHToMPS,
	}

	ret.GearShifter = gearFromLever(pt.Value("TransGearData", "GearLvrPos_D_Actl"))

	ret.DoorOpen = pt.Value("BodyInfo_3_FD1", "DrStatDrv_B_Actl") != 0 ||
		pt.Value("BodyInfo_3_FD1", "DrStatPsngr_B_Actl") != 0 ||
		pt.Value("BodyInfo_3_FD1", "DrStatRl_B_Actl") != 0 ||
		pt.Value("BodyInfo_3_FD1", "DrStatRr_B_Actl") != 0
	ret.SeatbeltUnlatched = pt.Value("RCMStatusMessage2_FD1", "FirstRowBuckleDriver") == 2

	ret.LeftBlinker = pt.Value("Steering_Buttons", "Left_Turn_Light") != 0
	ret.RightBlinker = pt.Value("Steering_Buttons", "Right_Turn_Light") != 0

	ret.CanValid = pt.CanValid() && cam.CanValid()
	return ret
}

func gearFromLever(code float64) vehicle.GearShifter {
	switch code {
	case 0:
		return vehicle.GearPark
	case 1:
		return vehicle.GearReverse
	case 2:
		return vehicle.GearNeutral
	case 3:
		return vehicle.GearDrive
	default:
		return vehicle.GearUnknown
	}
}
