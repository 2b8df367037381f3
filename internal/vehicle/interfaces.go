package vehicle

import "github.com/banshee-data/canpilot/internal/can"

// StateDecoder turns received frames into a CarState once per cycle.
// Decode must not be called before Ready reports true.
type StateDecoder interface {
	// Ingest folds received frames into the latest signal values.
	Ingest(frames []can.Frame, nanos int64)
	// Ready reports whether every message the decoder reads has arrived
	// at least once.
	Ready() bool
	Decode() CarState
}

// CommandEncoder produces the frames to send for one control cycle and the
// actuator values actually encoded in them.
type CommandEncoder interface {
	Update(cc CarControl, cs CarState) (Actuators, []can.Frame)
}

// RadarTracker accumulates radar frames and returns a snapshot once a
// complete batch has been seen.
type RadarTracker interface {
	Update(frames []can.Frame, nanos int64) (RadarData, bool)
}

// Interface bundles the capabilities of one brand for one model.
type Interface interface {
	Params() CarParams
	Decoder() StateDecoder
	Encoder() CommandEncoder
	Tracker() RadarTracker
}
