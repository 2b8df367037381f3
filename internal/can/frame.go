// Package can defines the raw CAN frame passed between the transport, the
// signal database and the vehicle modules, plus the two wire layouts used to
// move frames around: the Linux SocketCAN can_frame struct and the SLCAN
// ASCII line protocol spoken by USB-serial adapters.
package can

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Identifier limits.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
	MaxDataLen    = 8
)

// SocketCAN flag bits carried in the top of can_id.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	effMask = 0x1FFFFFFF
	sffMask = 0x7FF
)

// SocketCANFrameLen is the size of struct can_frame.
const SocketCANFrameLen = 16

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is one classical CAN message as seen by the vehicle modules. Bus is
// the logical bus index (0 powertrain, 1 radar, 2 camera on the Ford
// harness), not a property of the wire format.
type Frame struct {
	Address uint32
	Bus     uint8
	Data    []byte
}

// NewFrame copies data into a new frame.
func NewFrame(address uint32, bus uint8, data []byte) Frame {
	d := make([]byte, len(data))
	copy(d, data)
	return Frame{Address: address, Bus: bus, Data: d}
}

// Extended reports whether the address needs a 29-bit identifier.
func (f Frame) Extended() bool {
	return f.Address > MaxStandardID
}

// Validate returns an error if the frame cannot be put on a classical CAN bus.
func (f Frame) Validate() error {
	if f.Address > MaxExtendedID {
		return ErrInvalidID
	}
	if len(f.Data) > MaxDataLen {
		return ErrInvalidLen
	}
	return nil
}

func (f Frame) String() string {
	return fmt.Sprintf("bus%d 0x%03X [%d] % X", f.Bus, f.Address, len(f.Data), f.Data)
}

// MarshalSocketCAN encodes the frame as struct can_frame. The id word uses
// the given byte order: little-endian for raw sockets on x86/arm hosts,
// big-endian for LINKTYPE_CAN_SOCKETCAN pcap records. The bus index is kept
// in the __res0 byte so captures can be replayed onto the right bus.
func (f Frame) MarshalSocketCAN(order binary.ByteOrder) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.Address
	if f.Extended() {
		id |= effFlag
	}
	buf := make([]byte, SocketCANFrameLen)
	order.PutUint32(buf[0:4], id)
	buf[4] = uint8(len(f.Data))
	buf[6] = f.Bus
	copy(buf[8:], f.Data)
	return buf, nil
}

// UnmarshalSocketCAN decodes struct can_frame. RTR frames carry no data and
// are returned with an empty payload.
func (f *Frame) UnmarshalSocketCAN(data []byte, order binary.ByteOrder) error {
	if len(data) < SocketCANFrameLen {
		return fmt.Errorf("can: need %d bytes, got %d", SocketCANFrameLen, len(data))
	}
	id := order.Uint32(data[0:4])
	if id&effFlag != 0 {
		f.Address = id & effMask
	} else {
		f.Address = id & sffMask
	}
	n := int(data[4])
	if n > MaxDataLen {
		return ErrInvalidLen
	}
	if id&rtrFlag != 0 {
		n = 0
	}
	f.Bus = data[6]
	f.Data = make([]byte, n)
	copy(f.Data, data[8:8+n])
	return nil
}
