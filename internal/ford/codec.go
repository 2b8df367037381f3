package ford

import "math"

// speedResolution is the fixed-point step of the reported speed signals.
const speedResolution = 0.01

// dataQualifier is the value of the D_Qf signals ("valid") that the
// checksum also folds in.
const dataQualifier = 3

// Checksum computes the additive guard byte of the speed report frames
// from the rolling counter (0..15) and the reported speed in km/h.
func Checksum(counter uint8, speed float64) uint8 {
	q := int(math.Round(speed/speedResolution*100) / 100)
	cs := 255 - int(counter) - q>>8 - q&0xff - dataQualifier
	if cs < 0 {
		cs += 255
	}
	return uint8(cs)
}

// RollingCounter returns the 4-bit counter for frame.
func RollingCounter(frame uint64) uint8 {
	return uint8(frame % 16)
}
