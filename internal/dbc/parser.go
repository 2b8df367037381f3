package dbc

import (
	"fmt"
	"sort"

	"github.com/banshee-data/canpilot/internal/can"
)

const (
	// A checked message older than this many periods is stale.
	staleAfterPeriods = 10
	// Consecutive invalid updates tolerated before the bus is reported invalid.
	maxInvalidCount = 5
)

// Check asks the Parser to watch a message for freshness. A Frequency of
// zero subscribes to the message without checking it.
type Check struct {
	Message   string
	Frequency float64 // Hz
}

type messageState struct {
	msg      *Message
	values   map[string]float64
	period   int64 // nanos, 0 when unchecked
	lastSeen int64
	seen     bool
}

// Parser keeps the latest decoded value of every subscribed message on one
// bus, and tracks whether the checked messages are arriving on time.
type Parser struct {
	db           *Database
	bus          uint8
	byAddress    map[uint32]*messageState
	byName       map[string]*messageState
	invalidCount int
}

// NewParser subscribes to the given messages on bus.
func NewParser(db *Database, bus uint8, checks []Check) (*Parser, error) {
	p := &Parser{
		db:           db,
		bus:          bus,
		byAddress:    make(map[uint32]*messageState, len(checks)),
		byName:       make(map[string]*messageState, len(checks)),
		invalidCount: maxInvalidCount,
	}
	for _, c := range checks {
		m, err := db.MessageByName(c.Message)
		if err != nil {
			return nil, err
		}
		st := &messageState{msg: m, values: make(map[string]float64, len(m.Signals))}
		if c.Frequency > 0 {
			st.period = int64(1e9 / c.Frequency)
		}
		for _, s := range m.Signals {
			st.values[s.Name] = 0
		}
		p.byAddress[m.Address] = st
		p.byName[m.Name] = st
	}
	return p, nil
}

// Bus returns the bus this parser listens on.
func (p *Parser) Bus() uint8 { return p.bus }

// Update decodes frames from this parser's bus and returns the sorted,
// de-duplicated addresses that were updated. nanos is the monotonic time
// of the batch and drives the freshness checks.
func (p *Parser) Update(frames []can.Frame, nanos int64) []uint32 {
	updated := make(map[uint32]struct{})
	for _, f := range frames {
		if f.Bus != p.bus {
			continue
		}
		st, ok := p.byAddress[f.Address]
		if !ok {
			continue
		}
		if len(f.Data) < st.msg.Size {
			continue
		}
		for i := range st.msg.Signals {
			s := &st.msg.Signals[i]
			st.values[s.Name] = s.Decode(f.Data)
		}
		st.lastSeen = nanos
		st.seen = true
		updated[f.Address] = struct{}{}
	}

	if p.fresh(nanos) {
		p.invalidCount = 0
	} else if p.invalidCount < maxInvalidCount {
		p.invalidCount++
	}

	addrs := make([]uint32, 0, len(updated))
	for a := range updated {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func (p *Parser) fresh(nanos int64) bool {
	for _, st := range p.byAddress {
		if st.period == 0 {
			continue
		}
		if !st.seen || nanos-st.lastSeen > staleAfterPeriods*st.period {
			return false
		}
	}
	return true
}

// CanValid reports whether every checked message has been fresh recently.
func (p *Parser) CanValid() bool {
	return p.invalidCount < maxInvalidCount
}

// Value returns the latest physical value of message.signal. Messages
// that have not been received yet read as zero.
func (p *Parser) Value(message, signal string) float64 {
	st, ok := p.byName[message]
	if !ok {
		return 0
	}
	return st.values[signal]
}

// Lookup is Value with an error for names outside the subscription.
func (p *Parser) Lookup(message, signal string) (float64, error) {
	st, ok := p.byName[message]
	if !ok {
		return 0, fmt.Errorf("%w: %s not subscribed", ErrUnknownMessage, message)
	}
	v, ok := st.values[signal]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnknownSignal, message, signal)
	}
	return v, nil
}

// ValueAt returns a signal of the message subscribed at addr.
func (p *Parser) ValueAt(addr uint32, signal string) float64 {
	st, ok := p.byAddress[addr]
	if !ok {
		return 0
	}
	return st.values[signal]
}

// Seen reports whether the message has been received at least once.
func (p *Parser) Seen(message string) bool {
	st, ok := p.byName[message]
	return ok && st.seen
}
