// Package units provides speed unit names and conversions. Internally every
// speed is in metres per second.
package units

import "fmt"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Conversion factors.
const (
	KPHToMPS = 1 / 3.6
	MPSToKPH = 3.6
	MPHToMPS = 0.44704
	MPSToMPH = 1 / MPHToMPS
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from metres per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * MPSToMPH
	case KMPH, KPH:
		return speedMPS * MPSToKPH
	default:
		return speedMPS
	}
}

// ToMPS converts a speed in the given units to metres per second.
func ToMPS(speed float64, fromUnits string) (float64, error) {
	switch fromUnits {
	case MPS:
		return speed, nil
	case MPH:
		return speed * MPHToMPS, nil
	case KMPH, KPH:
		return speed * KPHToMPS, nil
	default:
		return 0, fmt.Errorf("unknown speed unit %q (valid: %v)", fromUnits, ValidUnits)
	}
}
