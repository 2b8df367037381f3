package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultControlConfig(t *testing.T) {
	cfg := DefaultControlConfig()

	if cfg.SteerDelayCeiling == nil || *cfg.SteerDelayCeiling != 150 {
		t.Errorf("Expected SteerDelayCeiling 150, got %v", cfg.SteerDelayCeiling)
	}
	if cfg.FrameStep == nil || *cfg.FrameStep != 1 {
		t.Errorf("Expected FrameStep 1, got %v", cfg.FrameStep)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if len(cfg.GetRadarInit()) != 9 {
		t.Errorf("Expected 9 radar init frames, got %d", len(cfg.GetRadarInit()))
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := &ControlConfig{}

	if got := cfg.GetSteerDelayCeiling(); got != 150 {
		t.Errorf("GetSteerDelayCeiling() = %d, want 150", got)
	}
	xs, ys := cfg.GetSteerInterp()
	if diff := cmp.Diff([]float64{-1, 1}, xs); diff != "" {
		t.Errorf("interp x (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{-20, 20}, ys); diff != "" {
		t.Errorf("interp y (-want +got):\n%s", diff)
	}
	if got := cfg.GetSteerMaxDeltaDeg(); got != 10 {
		t.Errorf("GetSteerMaxDeltaDeg() = %f, want 10", got)
	}
	if got := cfg.GetRadarScoreThreshold(); got != 50 {
		t.Errorf("GetRadarScoreThreshold() = %f, want 50", got)
	}
	if got := cfg.GetRadarMaxRange(); got != 255 {
		t.Errorf("GetRadarMaxRange() = %f, want 255", got)
	}
	if !cfg.GetRadarInitEnabled() {
		t.Error("GetRadarInitEnabled() = false, want true")
	}
	if got := cfg.GetControlInterval(); got != 10*time.Millisecond {
		t.Errorf("GetControlInterval() = %v, want 10ms", got)
	}
	if got := cfg.GetSpeedResetThreshold(); got != 2.0 {
		t.Errorf("GetSpeedResetThreshold() = %f, want 2", got)
	}
	if got := cfg.GetRecordEvery(); got != 10 {
		t.Errorf("GetRecordEvery() = %d, want 10", got)
	}
	if diff := cmp.Diff(DefaultControlConfig().GetRadarInit(), cfg.GetRadarInit()); diff != "" {
		t.Errorf("radar init (-want +got):\n%s", diff)
	}
}

func TestInitFramePayload(t *testing.T) {
	f := InitFrame{Address: 0x141, Bus: 1, Period: 2, Data: "00000046"}
	p, err := f.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 0, 0, 0x46}, p); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestLoadControlConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "control.json")

	testJSON := `{
  "steer_delay_ceiling": 50,
  "frame_step": 2,
  "radar_init_enabled": false,
  "radar_init": [{"address": 321, "bus": 1, "period": 2, "data": "00000046"}]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadControlConfig(configPath)
	if err != nil {
		t.Fatalf("LoadControlConfig failed: %v", err)
	}
	if got := cfg.GetSteerDelayCeiling(); got != 50 {
		t.Errorf("GetSteerDelayCeiling() = %d, want 50", got)
	}
	if got := cfg.GetFrameStep(); got != 2 {
		t.Errorf("GetFrameStep() = %d, want 2", got)
	}
	if cfg.GetRadarInitEnabled() {
		t.Error("GetRadarInitEnabled() = true, want false")
	}
	if got := len(cfg.GetRadarInit()); got != 1 {
		t.Errorf("len(GetRadarInit()) = %d, want 1", got)
	}
	// omitted fields keep defaults
	if got := cfg.GetSteerMaxDeltaDeg(); got != 10 {
		t.Errorf("GetSteerMaxDeltaDeg() = %f, want 10", got)
	}
}

func TestLoadControlConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, content string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("c.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"too large", write("big.json", `{"x":"`+strings.Repeat("a", 1024*1024)+`"}`), "too large"},
		{"invalid value", write("inv.json", `{"frame_step": 3}`), "frame_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadControlConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadControlConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ControlConfig
		wantErr bool
	}{
		{"empty", ControlConfig{}, false},
		{"zero ceiling", ControlConfig{SteerDelayCeiling: ptrInt(0)}, true},
		{"length mismatch", ControlConfig{SteerInterpX: []float64{-1, 1}, SteerInterpY: []float64{0}}, true},
		{"single point", ControlConfig{SteerInterpX: []float64{0}, SteerInterpY: []float64{0}}, true},
		{"not increasing", ControlConfig{SteerInterpX: []float64{1, -1}, SteerInterpY: []float64{0, 0}}, true},
		{"duplicate", ControlConfig{SteerInterpX: []float64{0, 0}, SteerInterpY: []float64{0, 1}}, true},
		{"three points", ControlConfig{SteerInterpX: []float64{-1, 0, 1}, SteerInterpY: []float64{-5, 0, 5}}, false},
		{"negative clamp", ControlConfig{SteerMaxDeltaDeg: ptrFloat64(-1)}, true},
		{"frame step 0", ControlConfig{FrameStep: ptrInt(0)}, true},
		{"zero range", ControlConfig{RadarMaxRange: ptrFloat64(0)}, true},
		{"zero rate", ControlConfig{ControlRateHz: ptrFloat64(0)}, true},
		{"zero reset", ControlConfig{SpeedResetThreshold: ptrFloat64(0)}, true},
		{"negative record", ControlConfig{RecordEvery: ptrInt(-1)}, true},
		{"bad init hex", ControlConfig{RadarInit: &[]InitFrame{{Period: 1, Data: "zz"}}}, true},
		{"init period", ControlConfig{RadarInit: &[]InitFrame{{Period: 0, Data: "00"}}}, true},
		{"init too long", ControlConfig{RadarInit: &[]InitFrame{{Period: 1, Data: "000000000000000000"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultControlConfig(), cfg); diff != "" {
		t.Errorf("config/control.defaults.json drifted from DefaultControlConfig (-want +got):\n%s", diff)
	}
}
