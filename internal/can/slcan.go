package can

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLine is returned for SLCAN lines that are not data frames.
var ErrInvalidLine = errors.New("can: invalid slcan line")

// EncodeSLCAN renders a data frame as an SLCAN transmit command without the
// trailing carriage return, e.g. "t4158112233445566778" for an 8 byte frame.
func EncodeSLCAN(f Frame) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	if f.Extended() {
		b.WriteByte('T')
		b.WriteString(fmt.Sprintf("%08X", f.Address&effMask))
	} else {
		b.WriteByte('t')
		b.WriteString(fmt.Sprintf("%03X", f.Address&sffMask))
	}
	b.WriteByte('0' + byte(len(f.Data)))
	b.WriteString(strings.ToUpper(hex.EncodeToString(f.Data)))
	return b.String(), nil
}

// ParseSLCAN decodes an SLCAN data frame line. Adapters optionally append a
// 4 hex digit timestamp which is ignored. Remote frames ('r'/'R') and status
// responses are rejected with ErrInvalidLine so the caller can skip them.
func ParseSLCAN(line string, bus uint8) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Frame{}, ErrInvalidLine
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
	default:
		return Frame{}, ErrInvalidLine
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("%w: %q too short", ErrInvalidLine, line)
	}

	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad identifier in %q", ErrInvalidLine, line)
	}
	n := int(line[1+idLen] - '0')
	if n < 0 || n > MaxDataLen {
		return Frame{}, fmt.Errorf("%w: bad length in %q", ErrInvalidLine, line)
	}

	payload := line[2+idLen:]
	if len(payload) != 2*n && len(payload) != 2*n+4 {
		return Frame{}, fmt.Errorf("%w: payload length mismatch in %q", ErrInvalidLine, line)
	}
	data, err := hex.DecodeString(payload[:2*n])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidLine, err)
	}

	f := Frame{Address: uint32(id), Bus: bus, Data: data}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}
