package ford

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/config"
	"github.com/banshee-data/canpilot/internal/dbc"
	"github.com/banshee-data/canpilot/internal/monitoring"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var logRadar = monitoring.Component("radar")

const (
	radarTrackBase = 0x180 // RADAR_TRACK_180..18F
	radarScoreBase = 0x190 // RADAR_SCORE_190..19F
	radarSlots     = 16

	// radarFrequency is the expected rate of every radar message, Hz.
	radarFrequency = 20
)

// RadarInterface tracks radar points across batches. Each track message
// address is a slot; a slot holds at most one live track.
type RadarInterface struct {
	parser  *dbc.Parser
	noRadar bool

	scoreThreshold float64
	maxRange       float64

	validCnt map[uint32]int
	pts      map[uint32]*vehicle.RadarPoint
	nextID   uint64

	trigger uint32
	updated map[uint32]struct{}

	canValid bool
}

// NewRadarInterface subscribes to the radar messages on bus 1. With
// noRadar set every Update returns an empty snapshot.
func NewRadarInterface(db *dbc.Database, cfg *config.ControlConfig, noRadar bool) (*RadarInterface, error) {
	if cfg == nil {
		cfg = &config.ControlConfig{}
	}
	ri := &RadarInterface{
		noRadar:        noRadar,
		scoreThreshold: cfg.GetRadarScoreThreshold(),
		maxRange:       cfg.GetRadarMaxRange(),
		validCnt:       make(map[uint32]int, radarSlots),
		pts:            make(map[uint32]*vehicle.RadarPoint),
		trigger:        radarScoreBase + radarSlots - 1,
		updated:        make(map[uint32]struct{}),
		canValid:       true,
	}
	if noRadar {
		return ri, nil
	}

	checks := make([]dbc.Check, 0, 2*radarSlots)
	for i := uint32(0); i < radarSlots; i++ {
		checks = append(checks, dbc.Check{Message: fmt.Sprintf("RADAR_TRACK_%X", radarTrackBase+i), Frequency: radarFrequency})
	}
	for i := uint32(0); i < radarSlots; i++ {
		checks = append(checks, dbc.Check{Message: fmt.Sprintf("RADAR_SCORE_%X", radarScoreBase+i), Frequency: radarFrequency})
	}
	parser, err := dbc.NewParser(db, BusRadar, checks)
	if err != nil {
		return nil, err
	}
	ri.parser = parser
	for i := uint32(0); i < radarSlots; i++ {
		ri.validCnt[radarTrackBase+i] = 0
	}
	return ri, nil
}

// Update accumulates frames and returns a snapshot once the trigger
// message has been seen since the previous snapshot.
func (r *RadarInterface) Update(frames []can.Frame, nanos int64) (vehicle.RadarData, bool) {
	if r.noRadar {
		return vehicle.RadarData{Points: []vehicle.RadarPoint{}}, true
	}

	for _, addr := range r.parser.Update(frames, nanos) {
		r.updated[addr] = struct{}{}
	}
	if _, ok := r.updated[r.trigger]; !ok {
		return vehicle.RadarData{}, false
	}

	data := r.snapshot()
	clear(r.updated)
	return data, true
}

func isTrackSlot(addr uint32) bool {
	return addr >= radarTrackBase && addr < radarTrackBase+radarSlots
}

func (r *RadarInterface) snapshot() vehicle.RadarData {
	valid := r.parser.CanValid()
	if valid != r.canValid {
		logRadar("bus valid changed: %v -> %v", r.canValid, valid)
		r.canValid = valid
	}

	slots := make([]uint32, 0, len(r.updated))
	for addr := range r.updated {
		if isTrackSlot(addr) {
			slots = append(slots, addr)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	for _, ii := range slots {
		r.updateSlot(ii)
	}

	return vehicle.RadarData{Points: r.points(), CanError: !valid}
}

func (r *RadarInterface) updateSlot(ii uint32) {
	dist := r.parser.ValueAt(ii, "LONG_DIST")
	validFlag := r.parser.ValueAt(ii, "VALID") != 0
	newTrack := r.parser.ValueAt(ii, "NEW_TRACK") != 0
	inRange := dist < r.maxRange

	if !inRange || newTrack {
		r.validCnt[ii] = 0
	}
	if validFlag && inRange {
		r.validCnt[ii]++
	} else if r.validCnt[ii] > 0 {
		r.validCnt[ii]--
	}

	score := r.parser.ValueAt(ii+radarSlots, "SCORE")
	if !(validFlag || (score > r.scoreThreshold && inRange && r.validCnt[ii] > 0)) {
		delete(r.pts, ii)
		return
	}

	pt, ok := r.pts[ii]
	if !ok || newTrack {
		pt = &vehicle.RadarPoint{TrackID: r.nextID, Slot: ii}
		r.nextID++
		r.pts[ii] = pt
	}
	pt.DRel = dist
	pt.YRel = -r.parser.ValueAt(ii, "LAT_DIST")
	pt.VRel = r.parser.ValueAt(ii, "REL_SPEED")
	pt.ARel = math.NaN()
	pt.YvRel = math.NaN()
	pt.Measured = validFlag
}

func (r *RadarInterface) points() []vehicle.RadarPoint {
	slots := make([]uint32, 0, len(r.pts))
	for s := range r.pts {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	out := make([]vehicle.RadarPoint, len(slots))
	for i, s := range slots {
		out[i] = *r.pts[s]
	}
	return out
}

// ValidCount returns the hysteresis counter of a track slot.
func (r *RadarInterface) ValidCount(slot uint32) int {
	return r.validCnt[slot]
}
