package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/canpilot/internal/canbus"
)

// Channel kinds accepted by --channel.
const (
	kindSLCAN     = "slcan"
	kindSocketCAN = "socketcan"
)

var errNoChannels = errors.New("at least one --channel is required (or pass --disable-can)")

// channelSpec is one parsed --channel value, BUS=KIND:TARGET, e.g.
// "0=slcan:/dev/ttyACM0" or "1=socketcan:can1".
type channelSpec struct {
	Bus    uint8
	Kind   string
	Target string
}

func parseChannel(s string) (channelSpec, error) {
	busPart, rest, ok := strings.Cut(s, "=")
	if !ok {
		return channelSpec{}, fmt.Errorf("channel %q: want BUS=KIND:TARGET", s)
	}
	bus, err := strconv.ParseUint(strings.TrimSpace(busPart), 10, 8)
	if err != nil {
		return channelSpec{}, fmt.Errorf("channel %q: bad bus index: %w", s, err)
	}
	kind, target, ok := strings.Cut(rest, ":")
	if !ok || target == "" {
		return channelSpec{}, fmt.Errorf("channel %q: want BUS=KIND:TARGET", s)
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case kindSLCAN, kindSocketCAN:
	default:
		return channelSpec{}, fmt.Errorf("channel %q: unknown kind %q (want %s or %s)", s, kind, kindSLCAN, kindSocketCAN)
	}
	return channelSpec{Bus: uint8(bus), Kind: kind, Target: target}, nil
}

func parseChannels(values []string) ([]channelSpec, error) {
	if len(values) == 0 {
		return nil, errNoChannels
	}
	seen := make(map[uint8]bool)
	out := make([]channelSpec, 0, len(values))
	for _, v := range values {
		spec, err := parseChannel(v)
		if err != nil {
			return nil, err
		}
		if seen[spec.Bus] {
			return nil, fmt.Errorf("bus %d given more than once", spec.Bus)
		}
		seen[spec.Bus] = true
		out = append(out, spec)
	}
	return out, nil
}

// openFunc opens one channel. Tests swap it out.
type openFunc func(spec channelSpec, opts canbus.PortOptions) (canbus.Bus, error)

func openChannel(spec channelSpec, opts canbus.PortOptions) (canbus.Bus, error) {
	opts.Bus = spec.Bus
	if spec.Kind == kindSocketCAN {
		m, err := canbus.NewSocketCANMux(spec.Target, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := canbus.NewSerialMux(spec.Target, opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// openBuses opens every channel into one group, closing the ones already
// opened if a later channel fails.
func openBuses(specs []channelSpec, opts canbus.PortOptions, open openFunc) (*canbus.Group, error) {
	members := make(map[uint8]canbus.Bus, len(specs))
	for _, spec := range specs {
		b, err := open(spec, opts)
		if err != nil {
			for _, m := range members {
				m.Close()
			}
			return nil, fmt.Errorf("open bus %d (%s %s): %w", spec.Bus, spec.Kind, spec.Target, err)
		}
		members[spec.Bus] = b
	}
	return canbus.NewGroup(members), nil
}
