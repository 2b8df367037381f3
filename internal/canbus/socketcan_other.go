//go:build !linux

package canbus

import "errors"

// ErrSocketCANUnsupported is returned on platforms without AF_CAN.
var ErrSocketCANUnsupported = errors.New("socketcan is only available on linux")

// SocketCANPort is unavailable on this platform.
type SocketCANPort struct{}

func (p *SocketCANPort) Read([]byte) (int, error)  { return 0, ErrSocketCANUnsupported }
func (p *SocketCANPort) Write([]byte) (int, error) { return 0, ErrSocketCANUnsupported }
func (p *SocketCANPort) Close() error              { return nil }

func NewSocketCANMux(string, PortOptions) (*Mux[*SocketCANPort], error) {
	return nil, ErrSocketCANUnsupported
}
