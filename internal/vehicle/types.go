// Package vehicle defines the brand-independent contracts between the CAN
// protocol layer and the rest of the system: the decoded vehicle state,
// the control intent handed to an encoder, radar snapshots, and the
// per-model parameter record.
package vehicle

import (
	"fmt"
	"strings"
)

// GearShifter is the enumerated gear lever position.
type GearShifter int

const (
	GearUnknown GearShifter = iota
	GearPark
	GearReverse
	GearNeutral
	GearDrive
)

var gearNames = map[GearShifter]string{
	GearUnknown: "unknown",
	GearPark:    "park",
	GearReverse: "reverse",
	GearNeutral: "neutral",
	GearDrive:   "drive",
}

func (g GearShifter) String() string {
	if s, ok := gearNames[g]; ok {
		return s
	}
	return fmt.Sprintf("GearShifter(%d)", int(g))
}

// MarshalText encodes the gear by name so JSON and SQL carry readable values.
func (g GearShifter) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (g *GearShifter) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for k, v := range gearNames {
		if v == name {
			*g = k
			return nil
		}
	}
	return fmt.Errorf("unknown gear %q", string(b))
}

// CruiseState is the stock cruise control status.
type CruiseState struct {
	Enabled   bool    `json:"enabled"`
	Available bool    `json:"available"`
	Speed     float64 `json:"speed"` // m/s
}

// CarState is one decoded snapshot of the vehicle. Speeds are in m/s,
// angles in degrees.
type CarState struct {
	VEgo    float64 `json:"v_ego"`
	AEgo    float64 `json:"a_ego"`
	VEgoRaw float64 `json:"v_ego_raw"`

	Standstill bool `json:"standstill"`

	SteeringAngleDeg float64 `json:"steering_angle_deg"`
	SteeringTorque   float64 `json:"steering_torque"`
	// Always false: the column torque sensor cannot separate driver input
	// from actuator feedback.
	SteeringPressed bool `json:"steering_pressed"`

	GasPressed   bool `json:"gas_pressed"`
	BrakePressed bool `json:"brake_pressed"`

	Cruise      CruiseState `json:"cruise"`
	GearShifter GearShifter `json:"gear_shifter"`

	DoorOpen          bool `json:"door_open"`
	SeatbeltUnlatched bool `json:"seatbelt_unlatched"`
	LeftBlinker       bool `json:"left_blinker"`
	RightBlinker      bool `json:"right_blinker"`
	GenericToggle     bool `json:"generic_toggle"`

	// Encoder inputs that are not part of the normalized state.
	SteeringAngleOffsetDeg float64 `json:"steering_angle_offset_deg"`
	AngleControlState      int     `json:"angle_control_state"`

	CanValid bool `json:"can_valid"`
}

// Actuators is the desired (or, when returned by an encoder, the sent)
// actuator command for one cycle.
type Actuators struct {
	// Steer is a normalized steering request in [-1, 1].
	Steer            float64 `json:"steer"`
	SteeringAngleDeg float64 `json:"steering_angle_deg"`
	Accel            float64 `json:"accel"`
}

// CruiseControl carries requests aimed at the stock cruise control.
type CruiseControl struct {
	Cancel bool `json:"cancel"`
}

// CarControl is the upstream intent for one control cycle.
type CarControl struct {
	Enabled       bool          `json:"enabled"`
	Actuators     Actuators     `json:"actuators"`
	CruiseControl CruiseControl `json:"cruise_control"`
}

// RadarPoint is one tracked radar object. Distances are in metres with
// y positive to the left.
type RadarPoint struct {
	TrackID  uint64  `json:"track_id"`
	Slot     uint32  `json:"slot"`
	DRel     float64 `json:"d_rel"`
	YRel     float64 `json:"y_rel"`
	VRel     float64 `json:"v_rel"`
	ARel     float64 `json:"-"` // NaN when the radar does not report it
	YvRel    float64 `json:"-"`
	Measured bool    `json:"measured"`
}

// RadarData is a snapshot of every live track.
type RadarData struct {
	Points []RadarPoint `json:"points"`
	// CanError reports the radar bus itself as unhealthy.
	CanError bool `json:"can_error"`
}
