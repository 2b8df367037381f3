package canbus

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Porter is the byte stream under a Mux: an SLCAN serial adapter or a
// SocketCAN interface presented as SLCAN lines.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// slcanBitrates maps CAN bitrates to the SLCAN "Sn" setup command.
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// PortOptions describes one CAN channel.
type PortOptions struct {
	// BaudRate is the serial line speed of an SLCAN adapter.
	BaudRate int `json:"baud_rate"`
	// Bitrate is the CAN bus bitrate.
	Bitrate int `json:"bitrate"`
	// Bus is the logical bus index stamped on received frames.
	Bus uint8 `json:"bus"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.Bitrate == 0 {
		opts.Bitrate = 500000
	}
	if _, ok := slcanBitrates[opts.Bitrate]; !ok {
		return opts, fmt.Errorf("unsupported CAN bitrate %d", opts.Bitrate)
	}
	return opts, nil
}

// SetupCommands returns the SLCAN commands that close the channel, set the
// bitrate and reopen it.
func (o PortOptions) SetupCommands() ([]string, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return []string{"C", slcanBitrates[opts.Bitrate], "O"}, nil
}

// SerialMode converts the options into the go.bug.st/serial mode used to
// open an SLCAN adapter. SLCAN adapters are always 8N1.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, nil
}
