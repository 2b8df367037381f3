package ford

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/monitoring"
	"github.com/banshee-data/canpilot/internal/units"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var logController = monitoring.Component("controller")

// RampPhase is the derived phase of the steering ramp.
type RampPhase int

const (
	PhaseDisengaged RampPhase = iota
	PhaseRamping
	PhaseEnabled
)

func (p RampPhase) String() string {
	switch p {
	case PhaseDisengaged:
		return "disengaged"
	case PhaseRamping:
		return "ramping"
	case PhaseEnabled:
		return "enabled"
	}
	return fmt.Sprintf("RampPhase(%d)", int(p))
}

// SteerRampState persists across control cycles.
type SteerRampState struct {
	// Delay counts engaged cycles from 1 up to one past the ceiling.
	Delay int
	// Enabled latches once Delay has passed the ceiling and clears on
	// disengage.
	Enabled bool
	// Frame drives the rolling counters and the init batch schedule.
	Frame uint64
	// Engaged records the intent of the last cycle.
	Engaged bool
}

type initFrame struct {
	addr   uint32
	bus    uint8
	period uint64
	data   []byte
}

// CarController encodes control intent into outgoing frames. It is not
// safe for concurrent use.
type CarController struct {
	packer *dbc.Packer

	ramp      SteerRampState
	ceiling   int
	steerMap  interp.PiecewiseLinear
	maxDelta  float64
	frameStep uint64
	initBatch []initFrame
}

// NewCarController builds a controller from cfg. A nil cfg uses defaults.
func NewCarController(packer *dbc.Packer, cfg *config.ControlConfig) (*CarController, error) {
	if cfg == nil {
		cfg = &config.ControlConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &CarController{
		packer:    packer,
		ramp:      SteerRampState{Delay: 1},
		ceiling:   cfg.GetSteerDelayCeiling(),
		maxDelta:  cfg.GetSteerMaxDeltaDeg(),
		frameStep: uint64(cfg.GetFrameStep()),
	}
	xs, ys := cfg.GetSteerInterp()
	if err := c.steerMap.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("steer interpolation: %w", err)
	}
	if cfg.GetRadarInitEnabled() {
		for i, f := range cfg.GetRadarInit() {
			data, err := f.Payload()
			if err != nil {
				return nil, fmt.Errorf("radar init frame %d: %w", i, err)
			}
			c.initBatch = append(c.initBatch, initFrame{
				addr: f.Address, bus: f.Bus, period: uint64(f.Period), data: data,
			})
		}
	}
	return c, nil
}

// State returns a copy of the ramp state.
func (c *CarController) State() SteerRampState { return c.ramp }

// Phase reports where the ramp is.
func (c *CarController) Phase() RampPhase {
	switch {
	case !c.ramp.Engaged:
		return PhaseDisengaged
	case c.ramp.Enabled:
		return PhaseEnabled
	default:
		return PhaseRamping
	}
}

// steerDelta maps a normalized steer request to a bounded angle delta.
func (c *CarController) steerDelta(steer float64) float64 {
	if math.IsNaN(steer) {
		steer = 0
	}
	d := c.steerMap.Predict(steer)
	return math.Max(-c.maxDelta, math.Min(c.maxDelta, d))
}

// Update advances the ramp one cycle and returns the actuators actually
// encoded along with the frames to send, in order: init batch, cancel,
// brake speed report, engine speed report, parking aid.
func (c *CarController) Update(cc vehicle.CarControl, cs vehicle.CarState) (vehicle.Actuators, []can.Frame) {
	frames := make([]can.Frame, 0, len(c.initBatch)+4)

	for _, f := range c.initBatch {
		if c.ramp.Frame%f.period == 0 {
			frames = append(frames, can.NewFrame(f.addr, f.bus, f.data))
		}
	}

	if cc.CruiseControl.Cancel {
		frames = append(frames, cancelButton(c.packer))
	}

	applySpeed := cs.VEgoRaw * units.MPSToKPH
	applySteer := cs.SteeringAngleDeg

	wasEnabled := c.ramp.Enabled
	if cc.Enabled {
		// The steering actuator expects a zero speed report while the
		// wheel is being overridden.
		applySpeed = 0
		if c.ramp.Delay <= c.ceiling {
			c.ramp.Delay++
		} else {
			c.ramp.Enabled = true
			applySteer = cs.SteeringAngleDeg + c.steerDelta(cc.Actuators.Steer)
		}
	} else {
		c.ramp.Delay = 1
		c.ramp.Enabled = false
	}
	c.ramp.Engaged = cc.Enabled

	if c.ramp.Enabled != wasEnabled {
		if c.ramp.Enabled {
			logController("steering enabled after %d cycles", c.ceiling)
		} else {
			logController("steering disabled")
		}
	}

	frames = append(frames,
		brakeSysFeatures(c.packer, c.ramp.Frame, applySpeed),
		engVehicleSpThrottle2(c.packer, c.ramp.Frame, applySpeed, cs.GearShifter),
		parkAidData(c.packer, c.ramp.Enabled, applySteer, cs.Standstill),
	)
	c.ramp.Frame += c.frameStep

	out := cc.Actuators
	out.SteeringAngleDeg = applySteer
	return out, frames
}
