package canbus

import (
	"go.bug.st/serial"
)

// NewSerialMux opens an SLCAN adapter on the serial device at path.
func NewSerialMux(path string, opts PortOptions) (*Mux[serial.Port], error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewMux[serial.Port](port, opts), nil
}
