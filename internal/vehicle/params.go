package vehicle

import (
	"errors"

	"github.com/banshee-data/canpilot/internal/can"
)

// ErrUnsupportedModel is returned when no parameter record exists for a model.
var ErrUnsupportedModel = errors.New("unsupported vehicle model")

// Model identifies a supported platform.
type Model string

// SteerControlType is how lateral commands are expressed.
type SteerControlType string

const (
	SteerControlAngle  SteerControlType = "angle"
	SteerControlTorque SteerControlType = "torque"
)

// TransmissionType of the vehicle.
type TransmissionType string

const (
	TransmissionAutomatic TransmissionType = "automatic"
	TransmissionManual    TransmissionType = "manual"
)

// ECU names a control unit found during firmware queries.
type ECU string

const ECUShiftByWire ECU = "shiftByWire"

// Fingerprint is what was observed on the bus before selecting parameters.
type Fingerprint struct {
	// Main holds the addresses seen on the main bus with their payload size.
	Main map[uint32]int `json:"main"`
	ECUs []ECU          `json:"ecus"`
}

// HasAddress reports whether addr was seen on the main bus.
func (f Fingerprint) HasAddress(addr uint32) bool {
	_, ok := f.Main[addr]
	return ok
}

// Observe adds a frame to the fingerprint when it was received on mainBus.
func (f *Fingerprint) Observe(frame can.Frame, mainBus uint8) {
	if frame.Bus != mainBus {
		return
	}
	if f.Main == nil {
		f.Main = make(map[uint32]int)
	}
	f.Main[frame.Address] = len(frame.Data)
}

// HasECU reports whether ecu answered a firmware query.
func (f Fingerprint) HasECU(ecu ECU) bool {
	for _, e := range f.ECUs {
		if e == ecu {
			return true
		}
	}
	return false
}

// CarParams is the immutable per-model configuration. Lengths are metres,
// masses kilograms, times seconds, speeds m/s.
type CarParams struct {
	Brand string `json:"brand"`
	Model Model  `json:"model"`

	Wheelbase     float64 `json:"wheelbase"`
	SteerRatio    float64 `json:"steer_ratio"`
	Mass          float64 `json:"mass"`
	CenterToFront float64 `json:"center_to_front"`

	SteerControlType   SteerControlType `json:"steer_control_type"`
	SteerActuatorDelay float64          `json:"steer_actuator_delay"`
	SteerLimitTimer    float64          `json:"steer_limit_timer"`
	MinSteerSpeed      float64          `json:"min_steer_speed"`

	TransmissionType TransmissionType `json:"transmission_type"`
	// MinEnableSpeed is -1 when engagement is allowed from standstill.
	MinEnableSpeed float64 `json:"min_enable_speed"`
	AutoResumeSng  bool    `json:"auto_resume_sng"`

	RadarUnavailable bool `json:"radar_unavailable"`
	EnableBsm        bool `json:"enable_bsm"`
	CanFD            bool `json:"can_fd"`
}
