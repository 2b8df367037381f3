// Package dbc is a small CAN signal database. It maps (message, signal)
// names to bit positions, scale and offset, and translates between raw
// frames and physical signal values in both directions. Definitions are
// YAML documents embedded in the binary.
package dbc

import (
	"embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var definitionsFS embed.FS

var (
	ErrUnknownDatabase = errors.New("dbc: unknown database")
	ErrUnknownMessage  = errors.New("dbc: unknown message")
	ErrUnknownSignal   = errors.New("dbc: unknown signal")
)

// ByteOrder is the DBC bit numbering of a signal.
type ByteOrder string

const (
	BigEndian    ByteOrder = "big_endian" // Motorola, start bit is the MSB
	LittleEndian ByteOrder = "little_endian"
)

// Signal describes one bit-packed field. Physical value = raw*Scale + Offset.
type Signal struct {
	Name     string    `yaml:"name"`
	StartBit int       `yaml:"start_bit"`
	Length   int       `yaml:"length"`
	Order    ByteOrder `yaml:"order"`
	Signed   bool      `yaml:"signed"`
	Scale    float64   `yaml:"scale"`
	Offset   float64   `yaml:"offset"`
	Unit     string    `yaml:"unit"`
}

// Message is a named frame layout at a fixed address.
type Message struct {
	Name    string   `yaml:"name"`
	Address uint32   `yaml:"address"`
	Size    int      `yaml:"size"`
	Count   int      `yaml:"count"`
	Signals []Signal `yaml:"signals"`

	signals map[string]*Signal
}

// Signal returns the named signal definition.
func (m *Message) Signal(name string) (*Signal, error) {
	s, ok := m.signals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSignal, m.Name, name)
	}
	return s, nil
}

// Database holds every message of one DBC document.
type Database struct {
	Name     string     `yaml:"name"`
	Messages []*Message `yaml:"messages"`

	byName    map[string]*Message
	byAddress map[uint32]*Message
}

// Load reads one of the embedded definitions by database name.
func Load(name string) (*Database, error) {
	data, err := definitionsFS.ReadFile("definitions/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
	}
	return Parse(data)
}

// MustLoad is Load for package-level tables whose names are fixed.
func MustLoad(name string) *Database {
	db, err := Load(name)
	if err != nil {
		panic(err)
	}
	return db
}

// Names lists the embedded databases.
func Names() []string {
	entries, err := definitionsFS.ReadDir("definitions")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		names = append(names, n[:len(n)-len(".yaml")])
	}
	sort.Strings(names)
	return names
}

// Parse decodes and validates a YAML database document. Messages with a
// count expand into count consecutive addresses named NAME_<hex address>.
func Parse(data []byte) (*Database, error) {
	var raw Database
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse dbc yaml: %w", err)
	}

	db := &Database{
		Name:      raw.Name,
		byName:    make(map[string]*Message),
		byAddress: make(map[uint32]*Message),
	}
	for _, m := range raw.Messages {
		if m.Count <= 1 {
			if err := db.add(m); err != nil {
				return nil, err
			}
			continue
		}
		for i := 0; i < m.Count; i++ {
			addr := m.Address + uint32(i)
			cp := &Message{
				Name:    fmt.Sprintf("%s_%X", m.Name, addr),
				Address: addr,
				Size:    m.Size,
				Signals: append([]Signal(nil), m.Signals...),
			}
			if err := db.add(cp); err != nil {
				return nil, err
			}
		}
	}
	return db, nil
}

func (d *Database) add(m *Message) error {
	if m.Size <= 0 || m.Size > 8 {
		return fmt.Errorf("message %s: size %d out of range", m.Name, m.Size)
	}
	if _, dup := d.byName[m.Name]; dup {
		return fmt.Errorf("message %s defined twice", m.Name)
	}
	if prev, dup := d.byAddress[m.Address]; dup {
		return fmt.Errorf("message %s reuses address 0x%X of %s", m.Name, m.Address, prev.Name)
	}

	m.signals = make(map[string]*Signal, len(m.Signals))
	for i := range m.Signals {
		s := &m.Signals[i]
		if s.Order == "" {
			s.Order = BigEndian
		}
		if s.Scale == 0 {
			s.Scale = 1
		}
		if s.Length <= 0 || s.Length > 64 {
			return fmt.Errorf("signal %s.%s: length %d out of range", m.Name, s.Name, s.Length)
		}
		if s.Order != BigEndian && s.Order != LittleEndian {
			return fmt.Errorf("signal %s.%s: unknown byte order %q", m.Name, s.Name, s.Order)
		}
		if err := checkBits(s, m.Size); err != nil {
			return fmt.Errorf("signal %s.%s: %w", m.Name, s.Name, err)
		}
		if _, dup := m.signals[s.Name]; dup {
			return fmt.Errorf("signal %s.%s defined twice", m.Name, s.Name)
		}
		m.signals[s.Name] = s
	}

	d.Messages = append(d.Messages, m)
	d.byName[m.Name] = m
	d.byAddress[m.Address] = m
	return nil
}

// MessageByName looks up a message definition.
func (d *Database) MessageByName(name string) (*Message, error) {
	m, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	return m, nil
}

// MessageByAddress looks up a message definition by CAN address.
func (d *Database) MessageByAddress(addr uint32) (*Message, error) {
	m, ok := d.byAddress[addr]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%X", ErrUnknownMessage, addr)
	}
	return m, nil
}
