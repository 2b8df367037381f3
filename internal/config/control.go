package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultConfigPath is the path to the canonical control defaults file.
const DefaultConfigPath = "config/control.defaults.json"

// InitFrame is one entry of the fixed frame batch sent to wake the radar.
// It is sent on every control cycle whose index is a multiple of Period.
type InitFrame struct {
	Address uint32 `json:"address"`
	Bus     uint8  `json:"bus"`
	Period  int    `json:"period"`
	Data    string `json:"data"` // hex payload
}

// Payload decodes Data.
func (f InitFrame) Payload() ([]byte, error) {
	return hex.DecodeString(f.Data)
}

// ControlConfig holds the tunables of the command encoder, the radar
// tracker and the control loop. Every field is optional; the Get* methods
// fall back to the defaults for omitted fields, so partial configs are safe.
type ControlConfig struct {
	// Steering ramp
	SteerDelayCeiling *int      `json:"steer_delay_ceiling,omitempty"`
	SteerInterpX      []float64 `json:"steer_interp_x,omitempty"`
	SteerInterpY      []float64 `json:"steer_interp_y,omitempty"` // degrees
	SteerMaxDeltaDeg  *float64  `json:"steer_max_delta_deg,omitempty"`

	// FrameStep is how far the frame counter advances per control cycle.
	FrameStep *int `json:"frame_step,omitempty"`

	// Radar
	RadarScoreThreshold *float64     `json:"radar_score_threshold,omitempty"`
	RadarMaxRange       *float64     `json:"radar_max_range,omitempty"`
	RadarInitEnabled    *bool        `json:"radar_init_enabled,omitempty"`
	RadarInit           *[]InitFrame `json:"radar_init,omitempty"`

	// Loop
	ControlRateHz       *float64 `json:"control_rate_hz,omitempty"`
	SpeedResetThreshold *float64 `json:"speed_reset_threshold,omitempty"` // m/s
	RecordEvery         *int     `json:"record_every,omitempty"`          // cycles between recorded rows
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultControlConfig returns a config with every field populated.
func DefaultControlConfig() *ControlConfig {
	batch := defaultRadarInit()
	return &ControlConfig{
		SteerDelayCeiling:   ptrInt(150),
		SteerInterpX:        []float64{-1, 1},
		SteerInterpY:        []float64{-20, 20},
		SteerMaxDeltaDeg:    ptrFloat64(10),
		FrameStep:           ptrInt(1),
		RadarScoreThreshold: ptrFloat64(50),
		RadarMaxRange:       ptrFloat64(255),
		RadarInitEnabled:    ptrBool(true),
		RadarInit:           &batch,
		ControlRateHz:       ptrFloat64(100),
		SpeedResetThreshold: ptrFloat64(2.0),
		RecordEvery:         ptrInt(10),
	}
}

func defaultRadarInit() []InitFrame {
	return []InitFrame{
		{Address: 0x128, Bus: 1, Period: 3, Data: "f40190830037"},
		{Address: 0x141, Bus: 1, Period: 2, Data: "00000046"},
		{Address: 0x160, Bus: 1, Period: 7, Data: "0000081201319c51"},
		{Address: 0x161, Bus: 1, Period: 7, Data: "001e0000008007"},
		{Address: 0x283, Bus: 0, Period: 3, Data: "0000000000008c"},
		{Address: 0x344, Bus: 0, Period: 5, Data: "0000010000000050"},
		{Address: 0x365, Bus: 0, Period: 20, Data: "00000080fc0008"},
		{Address: 0x366, Bus: 0, Period: 20, Data: "007207ff09fe00"},
		{Address: 0x4CB, Bus: 0, Period: 100, Data: "0c00000000000000"},
	}
}

// LoadControlConfig loads a ControlConfig from a JSON file. The file must
// have a .json extension and be at most 1MB.
func LoadControlConfig(path string) (*ControlConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ControlConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ControlConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadControlConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *ControlConfig) Validate() error {
	if c.SteerDelayCeiling != nil && *c.SteerDelayCeiling < 1 {
		return fmt.Errorf("steer_delay_ceiling must be at least 1, got %d", *c.SteerDelayCeiling)
	}

	if c.SteerInterpX != nil || c.SteerInterpY != nil {
		if len(c.SteerInterpX) != len(c.SteerInterpY) {
			return fmt.Errorf("steer_interp_x and steer_interp_y lengths differ: %d vs %d",
				len(c.SteerInterpX), len(c.SteerInterpY))
		}
		if len(c.SteerInterpX) < 2 {
			return fmt.Errorf("steer interpolation needs at least 2 points, got %d", len(c.SteerInterpX))
		}
		if !sort.SliceIsSorted(c.SteerInterpX, func(i, j int) bool { return c.SteerInterpX[i] < c.SteerInterpX[j] }) {
			return fmt.Errorf("steer_interp_x must be increasing")
		}
		for i := 1; i < len(c.SteerInterpX); i++ {
			if c.SteerInterpX[i] == c.SteerInterpX[i-1] {
				return fmt.Errorf("steer_interp_x has duplicate breakpoint %v", c.SteerInterpX[i])
			}
		}
	}

	if c.SteerMaxDeltaDeg != nil && *c.SteerMaxDeltaDeg < 0 {
		return fmt.Errorf("steer_max_delta_deg must be non-negative, got %f", *c.SteerMaxDeltaDeg)
	}

	if c.FrameStep != nil && (*c.FrameStep < 1 || *c.FrameStep > 2) {
		return fmt.Errorf("frame_step must be 1 or 2, got %d", *c.FrameStep)
	}

	if c.RadarMaxRange != nil && *c.RadarMaxRange <= 0 {
		return fmt.Errorf("radar_max_range must be positive, got %f", *c.RadarMaxRange)
	}

	if c.RadarInit != nil {
		for i, f := range *c.RadarInit {
			if f.Period < 1 {
				return fmt.Errorf("radar_init[%d]: period must be positive, got %d", i, f.Period)
			}
			p, err := f.Payload()
			if err != nil {
				return fmt.Errorf("radar_init[%d]: invalid data %q: %w", i, f.Data, err)
			}
			if len(p) > 8 {
				return fmt.Errorf("radar_init[%d]: payload is %d bytes (max 8)", i, len(p))
			}
		}
	}

	if c.ControlRateHz != nil && *c.ControlRateHz <= 0 {
		return fmt.Errorf("control_rate_hz must be positive, got %f", *c.ControlRateHz)
	}

	if c.SpeedResetThreshold != nil && *c.SpeedResetThreshold <= 0 {
		return fmt.Errorf("speed_reset_threshold must be positive, got %f", *c.SpeedResetThreshold)
	}

	if c.RecordEvery != nil && *c.RecordEvery < 0 {
		return fmt.Errorf("record_every must be non-negative, got %d", *c.RecordEvery)
	}
	return nil
}

// GetSteerDelayCeiling returns the number of engaged cycles before steering
// authority is requested.
func (c *ControlConfig) GetSteerDelayCeiling() int {
	if c.SteerDelayCeiling == nil {
		return 150
	}
	return *c.SteerDelayCeiling
}

// GetSteerInterp returns the breakpoints mapping a normalized steer request
// to an angle delta in degrees.
func (c *ControlConfig) GetSteerInterp() (xs, ys []float64) {
	if len(c.SteerInterpX) == 0 {
		return []float64{-1, 1}, []float64{-20, 20}
	}
	return c.SteerInterpX, c.SteerInterpY
}

// GetSteerMaxDeltaDeg returns the clamp applied to the angle delta.
func (c *ControlConfig) GetSteerMaxDeltaDeg() float64 {
	if c.SteerMaxDeltaDeg == nil {
		return 10
	}
	return *c.SteerMaxDeltaDeg
}

// GetFrameStep returns the frame counter increment per cycle.
func (c *ControlConfig) GetFrameStep() int {
	if c.FrameStep == nil {
		return 1
	}
	return *c.FrameStep
}

// GetRadarScoreThreshold returns the score above which an unflagged point
// may keep its track.
func (c *ControlConfig) GetRadarScoreThreshold() float64 {
	if c.RadarScoreThreshold == nil {
		return 50
	}
	return *c.RadarScoreThreshold
}

// GetRadarMaxRange returns the distance sentinel meaning "no target".
func (c *ControlConfig) GetRadarMaxRange() float64 {
	if c.RadarMaxRange == nil {
		return 255
	}
	return *c.RadarMaxRange
}

// GetRadarInitEnabled returns whether the radar init batch is sent.
func (c *ControlConfig) GetRadarInitEnabled() bool {
	if c.RadarInitEnabled == nil {
		return true
	}
	return *c.RadarInitEnabled
}

// GetRadarInit returns the radar init batch.
func (c *ControlConfig) GetRadarInit() []InitFrame {
	if c.RadarInit == nil {
		return defaultRadarInit()
	}
	return *c.RadarInit
}

// GetControlRateHz returns the control loop rate.
func (c *ControlConfig) GetControlRateHz() float64 {
	if c.ControlRateHz == nil {
		return 100
	}
	return *c.ControlRateHz
}

// GetControlInterval returns the period of the control loop.
func (c *ControlConfig) GetControlInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetControlRateHz())
}

// GetSpeedResetThreshold returns the speed jump (m/s) that resets the
// speed filter instead of being smoothed.
func (c *ControlConfig) GetSpeedResetThreshold() float64 {
	if c.SpeedResetThreshold == nil {
		return 2.0
	}
	return *c.SpeedResetThreshold
}

// GetRecordEvery returns how many cycles pass between recorded rows. Zero
// disables recording.
func (c *ControlConfig) GetRecordEvery() int {
	if c.RecordEvery == nil {
		return 10
	}
	return *c.RecordEvery
}
