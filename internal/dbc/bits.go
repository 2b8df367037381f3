package dbc

import (
	"fmt"
	"math"
)

// bitPositions returns the payload bit index (byte*8 + bit, bit 0 = LSB) of
// every bit in the signal, most significant first.
func bitPositions(s *Signal) []int {
	pos := make([]int, s.Length)
	if s.Order == LittleEndian {
		for i := 0; i < s.Length; i++ {
			pos[s.Length-1-i] = s.StartBit + i
		}
		return pos
	}
	p := s.StartBit
	for i := 0; i < s.Length; i++ {
		pos[i] = p
		if p%8 == 0 {
			p += 15
		} else {
			p--
		}
	}
	return pos
}

func checkBits(s *Signal, size int) error {
	for _, p := range bitPositions(s) {
		if p < 0 || p >= size*8 {
			return fmt.Errorf("bit %d outside %d byte payload", p, size)
		}
	}
	return nil
}

func extract(data []byte, s *Signal) uint64 {
	var raw uint64
	for _, p := range bitPositions(s) {
		raw <<= 1
		if p/8 < len(data) && data[p/8]&(1<<(p%8)) != 0 {
			raw |= 1
		}
	}
	return raw
}

func insert(data []byte, s *Signal, raw uint64) {
	pos := bitPositions(s)
	for i, p := range pos {
		bit := (raw >> uint(len(pos)-1-i)) & 1
		if bit == 1 {
			data[p/8] |= 1 << (p % 8)
		} else {
			data[p/8] &^= 1 << (p % 8)
		}
	}
}

// Decode converts the signal's raw bits in data to a physical value.
func (s *Signal) Decode(data []byte) float64 {
	raw := extract(data, s)
	if s.Signed && s.Length < 64 && raw&(1<<uint(s.Length-1)) != 0 {
		return float64(int64(raw)-int64(1)<<uint(s.Length))*s.Scale + s.Offset
	}
	return float64(raw)*s.Scale + s.Offset
}

// Encode writes a physical value into data. Values outside the signal's
// range wrap to its bit width.
func (s *Signal) Encode(data []byte, value float64) {
	raw := int64(math.Round((value - s.Offset) / s.Scale))
	var mask uint64 = math.MaxUint64
	if s.Length < 64 {
		mask = 1<<uint(s.Length) - 1
	}
	insert(data, s, uint64(raw)&mask)
}
