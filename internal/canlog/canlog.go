// Package canlog stores CAN traffic as pcap files using the
// LINKTYPE_CAN_SOCKETCAN record layout, so captures open in Wireshark and
// can be replayed through the vehicle modules offline.
package canlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/canpilot/internal/can"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN. Records are struct
// can_frame with a big-endian id word.
const LinkTypeCANSocketCAN layers.LinkType = 227

const snapLen = 64

var ErrLinkType = errors.New("canlog: capture is not LINKTYPE_CAN_SOCKETCAN")

// Writer appends frames to a pcap stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	count  int
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, LinkTypeCANSocketCAN); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw}, nil
}

// Create creates (or truncates) a capture file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// WriteFrame appends one frame captured at ts.
func (w *Writer) WriteFrame(ts time.Time, f can.Frame) error {
	data, err := f.MarshalSocketCAN(binary.BigEndian)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying file when the writer was made by Create.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Record is one captured frame.
type Record struct {
	Time  time.Time
	Frame can.Frame
}

// Reader iterates over a capture.
type Reader struct {
	r      *pcapgo.Reader
	closer io.Closer
}

// NewReader reads the pcap header from r and checks the link type.
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if pr.LinkType() != LinkTypeCANSocketCAN {
		return nil, fmt.Errorf("%w (got %d)", ErrLinkType, pr.LinkType())
	}
	return &Reader{r: pr}, nil
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (Record, error) {
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		return Record{}, err
	}
	var f can.Frame
	if err := f.UnmarshalSocketCAN(data, binary.BigEndian); err != nil {
		return Record{}, fmt.Errorf("bad record at %s: %w", ci.Timestamp, err)
	}
	return Record{Time: ci.Timestamp, Frame: f}, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
