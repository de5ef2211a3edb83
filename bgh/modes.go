package bgh

import "fmt"

// Mode is the operating mode code as carried on the wire.
type Mode byte

const (
	ModeOff     Mode = 0x00
	ModeCool    Mode = 0x01
	ModeHeat    Mode = 0x02
	ModeDry     Mode = 0x03
	ModeFanOnly Mode = 0x04
	ModeAuto    Mode = 0xFE
)

// Known reports whether the code is one of the documented operating modes.
// Units occasionally report transient codes outside this set; those are kept
// verbatim rather than rejected.
func (m Mode) Known() bool {
	switch m {
	case ModeOff, ModeCool, ModeHeat, ModeDry, ModeFanOnly, ModeAuto:
		return true
	}
	return false
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeCool:
		return "cool"
	case ModeHeat:
		return "heat"
	case ModeDry:
		return "dry"
	case ModeFanOnly:
		return "fan_only"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(m))
	}
}

// ParseMode maps a mode name (as used in the API and console) to its wire
// code.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "off":
		return ModeOff, true
	case "cool":
		return ModeCool, true
	case "heat":
		return ModeHeat, true
	case "dry":
		return ModeDry, true
	case "fan_only":
		return ModeFanOnly, true
	case "auto":
		return ModeAuto, true
	}
	return 0, false
}

// FanSpeed is the fan speed code as carried on the wire. It is meaningless
// while the unit is off.
type FanSpeed byte

const (
	FanLow    FanSpeed = 0x01
	FanMedium FanSpeed = 0x02
	FanHigh   FanSpeed = 0x03
)

// Known reports whether the code is one of the documented fan speeds.
func (f FanSpeed) Known() bool {
	switch f {
	case FanLow, FanMedium, FanHigh:
		return true
	}
	return false
}

func (f FanSpeed) String() string {
	switch f {
	case FanLow:
		return "low"
	case FanMedium:
		return "medium"
	case FanHigh:
		return "high"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(f))
	}
}

// ParseFanSpeed maps a fan speed name to its wire code.
func ParseFanSpeed(s string) (FanSpeed, bool) {
	switch s {
	case "low":
		return FanLow, true
	case "medium":
		return FanMedium, true
	case "high":
		return FanHigh, true
	}
	return 0, false
}

// Centidegrees is a temperature encoded as 100 × degrees Celsius, the way
// the wire protocol carries it. Integer arithmetic everywhere except the
// presentation boundary.
type Centidegrees int

// Celsius converts to degrees for presentation.
func (c Centidegrees) Celsius() float64 {
	return float64(c) / 100
}

func (c Centidegrees) String() string {
	return fmt.Sprintf("%.2f°C", c.Celsius())
}
