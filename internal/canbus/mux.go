// Package canbus multiplexes CAN channels. A Mux owns one channel and fans
// received frames out to any number of subscribers; a Group joins several
// Muxes into one multi-bus view and routes outgoing frames by bus index.
package canbus

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/monitoring"
)

var (
	ErrWriteFailed = errors.New("failed to write to CAN port")
	ErrWrongBus    = errors.New("frame addressed to another bus")
)

// subscriberBuffer is the per-subscriber queue depth. A full subscriber
// misses frames rather than stalling the reader.
const subscriberBuffer = 256

var logf = monitoring.Component("canbus")

// Bus is a CAN channel (or group of channels) that can be monitored,
// subscribed to and written.
type Bus interface {
	// Subscribe returns an id and a channel of received frames. The channel
	// is closed on Unsubscribe or Close.
	Subscribe() (string, chan can.Frame)
	Unsubscribe(string)
	// Send writes a frame. Its Bus field selects the channel.
	Send(can.Frame) error
	// Monitor reads frames until the port ends or ctx is done.
	Monitor(context.Context) error
	// Initialize configures the adapter before Monitor.
	Initialize() error
	Close() error
	// AttachAdminRoutes adds debug endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts traffic through a Mux.
type Stats struct {
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
	Skipped  uint64 `json:"skipped"` // lines that were not data frames
	Dropped  uint64 `json:"dropped"` // frames a full subscriber missed
}

// Mux is a single CAN channel over a line-oriented SLCAN port.
type Mux[T Porter] struct {
	port T
	opts PortOptions

	subscribers  map[string]chan can.Frame
	subscriberMu sync.Mutex
	sendMu       sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	received, sent, skipped, dropped atomic.Uint64
}

var _ Bus = (*Mux[Porter])(nil)

// NewMux wraps port. opts.Bus is stamped on every received frame.
func NewMux[T Porter](port T, opts PortOptions) *Mux[T] {
	return &Mux[T]{
		port:        port,
		opts:        opts,
		subscribers: make(map[string]chan can.Frame),
	}
}

// randomID generates a subscriber id (8 random bytes, hex encoded).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// BusIndex returns the logical bus of this channel.
func (m *Mux[T]) BusIndex() uint8 { return m.opts.Bus }

func (m *Mux[T]) Subscribe() (string, chan can.Frame) {
	id := randomID()
	ch := make(chan can.Frame, subscriberBuffer)

	m.closingMu.Lock()
	closing := m.closing
	m.closingMu.Unlock()
	if closing {
		close(ch)
		return id, ch
	}

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Initialize sets the bitrate and opens the channel.
func (m *Mux[T]) Initialize() error {
	cmds, err := m.opts.SetupCommands()
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := m.writeLine(cmd); err != nil {
			return fmt.Errorf("failed to send setup command %q: %w", cmd, err)
		}
	}
	return nil
}

func (m *Mux[T]) writeLine(line string) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	line += "\r"
	n, err := m.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Send writes one frame.
func (m *Mux[T]) Send(f can.Frame) error {
	if f.Bus != m.opts.Bus {
		return fmt.Errorf("%w: frame for bus %d on bus %d", ErrWrongBus, f.Bus, m.opts.Bus)
	}
	line, err := can.EncodeSLCAN(f)
	if err != nil {
		return err
	}
	if err := m.writeLine(line); err != nil {
		return err
	}
	m.sent.Add(1)
	return nil
}

// scanLines splits on CR or LF and skips empty lines. SLCAN adapters end
// lines with CR; bell (0x07) error responses come back on their own.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

// Monitor reads lines from the port and fans decoded frames out to the
// subscribers.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)
	scan.Split(scanLines)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs in its own goroutine so the loop below can
	// still observe ctx.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			f, err := can.ParseSLCAN(line, m.opts.Bus)
			if err != nil {
				if m.skipped.Add(1) == 1 {
					logf("bus %d: skipping non-frame line %q", m.opts.Bus, line)
				}
				continue
			}
			m.received.Add(1)
			m.publish(f)
		}
	}
}

func (m *Mux[T]) publish(f can.Frame) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- f:
		default:
			m.dropped.Add(1)
		}
	}
}

// Stats returns the traffic counters.
func (m *Mux[T]) Stats() Stats {
	return Stats{
		Received: m.received.Load(),
		Sent:     m.sent.Load(),
		Skipped:  m.skipped.Load(),
		Dropped:  m.dropped.Load(),
	}
}

func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()
	return m.port.Close()
}

func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, m, func() any { return m.Stats() })
}
