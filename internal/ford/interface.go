package ford

import (
	"fmt"

	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

// Interface is the Ford implementation of vehicle.Interface.
type Interface struct {
	params vehicle.CarParams
	cs     *CarState
	cc     *CarController
	ri     *RadarInterface
}

var _ vehicle.Interface = (*Interface)(nil)

// New builds the decoder, encoder and tracker for model. A nil cfg uses
// the defaults.
func New(model vehicle.Model, fp vehicle.Fingerprint, cfg *config.ControlConfig) (*Interface, error) {
	if cfg == nil {
		cfg = &config.ControlConfig{}
	}
	params, err := GetParams(model, fp)
	if err != nil {
		return nil, err
	}

	ptDB, err := dbc.Load(ptDBC)
	if err != nil {
		return nil, err
	}
	cs, err := NewCarState(ptDB, cfg.GetSpeedResetThreshold())
	if err != nil {
		return nil, fmt.Errorf("car state: %w", err)
	}
	cc, err := NewCarController(dbc.NewPacker(ptDB), cfg)
	if err != nil {
		return nil, fmt.Errorf("car controller: %w", err)
	}

	radarDB, err := dbc.Load(radarDBC)
	if err != nil {
		return nil, err
	}
	ri, err := NewRadarInterface(radarDB, cfg, params.RadarUnavailable)
	if err != nil {
		return nil, fmt.Errorf("radar interface: %w", err)
	}

	return &Interface{params: params, cs: cs, cc: cc, ri: ri}, nil
}

func (i *Interface) Params() vehicle.CarParams       { return i.params }
func (i *Interface) Decoder() vehicle.StateDecoder   { return i.cs }
func (i *Interface) Encoder() vehicle.CommandEncoder { return i.cc }
func (i *Interface) Tracker() vehicle.RadarTracker   { return i.ri }

// Controller exposes the concrete encoder for ramp inspection.
func (i *Interface) Controller() *CarController { return i.cc }
