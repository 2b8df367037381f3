//go:build linux

package canbus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/banshee-data/canpilot/internal/can"
)

// socketReadTimeoutUsec bounds each blocking read so Close can take effect.
const socketReadTimeoutUsec = 100000

// SocketCANPort presents a Linux raw CAN socket as an SLCAN line stream, so
// it can sit under the same Mux as a serial adapter. Non-frame commands
// written to it (bitrate setup) are ignored; the kernel interface carries
// its own bitrate.
type SocketCANPort struct {
	fd     int
	closed atomic.Bool

	readMu  sync.Mutex
	pending bytes.Buffer

	writeMu  sync.Mutex
	writeBuf bytes.Buffer
}

// OpenSocketCAN binds a raw CAN socket on the named interface (e.g. can0).
func OpenSocketCAN(ifname string) (*SocketCANPort, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to find interface %s: %w", ifname, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN socket: %w", err)
	}
	tv := unix.Timeval{Usec: socketReadTimeoutUsec}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set CAN socket timeout: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind CAN socket to %s: %w", ifname, err)
	}
	return &SocketCANPort{fd: fd}, nil
}

func (p *SocketCANPort) Read(b []byte) (int, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	buf := make([]byte, can.SocketCANFrameLen)
	for p.pending.Len() == 0 {
		if p.closed.Load() {
			return 0, io.EOF
		}
		n, err := unix.Read(p.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			if p.closed.Load() {
				return 0, io.EOF
			}
			return 0, err
		}
		if n < can.SocketCANFrameLen {
			continue
		}
		var f can.Frame
		if err := f.UnmarshalSocketCAN(buf, binary.NativeEndian); err != nil {
			continue
		}
		// The kernel leaves __res0 zero; the Mux stamps the real bus.
		f.Bus = 0
		line, err := can.EncodeSLCAN(f)
		if err != nil {
			continue
		}
		p.pending.WriteString(line)
		p.pending.WriteByte('\r')
	}
	return p.pending.Read(b)
}

func (p *SocketCANPort) Write(b []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	p.writeBuf.Write(b)
	for {
		data := p.writeBuf.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := string(data[:i])
		p.writeBuf.Next(i + 1)

		f, err := can.ParseSLCAN(line, 0)
		if err != nil {
			continue
		}
		raw, err := f.MarshalSocketCAN(binary.NativeEndian)
		if err != nil {
			return 0, err
		}
		if _, err := unix.Write(p.fd, raw); err != nil {
			return 0, fmt.Errorf("failed to write CAN frame: %w", err)
		}
	}
	return len(b), nil
}

func (p *SocketCANPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.fd)
}

// NewSocketCANMux opens a SocketCAN interface as a Mux.
func NewSocketCANMux(ifname string, opts PortOptions) (*Mux[*SocketCANPort], error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	port, err := OpenSocketCAN(ifname)
	if err != nil {
		return nil, err
	}
	return NewMux(port, opts), nil
}
