package dbc

import (
	"fmt"

	"github.com/banshee-data/canpilot/internal/can"
)

// Packer builds frames from named signal values.
type Packer struct {
	db *Database
}

// NewPacker returns a Packer over db.
func NewPacker(db *Database) *Packer {
	return &Packer{db: db}
}

// MustPacker loads an embedded database and panics if it is missing.
func MustPacker(name string) *Packer {
	return NewPacker(MustLoad(name))
}

// Database returns the underlying definitions.
func (p *Packer) Database() *Database { return p.db }

// Pack encodes values into a frame for the named message. Signals not
// present in values are left zero.
func (p *Packer) Pack(message string, bus uint8, values map[string]float64) (can.Frame, error) {
	m, err := p.db.MessageByName(message)
	if err != nil {
		return can.Frame{}, err
	}
	data := make([]byte, m.Size)
	for name, v := range values {
		s, err := m.Signal(name)
		if err != nil {
			return can.Frame{}, err
		}
		s.Encode(data, v)
	}
	return can.Frame{Address: m.Address, Bus: bus, Data: data}, nil
}

// MustPack is Pack for callers whose message and signal names are constants.
func (p *Packer) MustPack(message string, bus uint8, values map[string]float64) can.Frame {
	f, err := p.Pack(message, bus, values)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", message, err))
	}
	return f
}
