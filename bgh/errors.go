package bgh

import "fmt"

// EncodeError reports a command rejected before any I/O because the
// requested mode or fan code is outside the enumerated set.
type EncodeError struct {
	Field string // "mode" or "fan speed"
	Code  byte
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("cannot encode command: invalid %s code 0x%02X", e.Field, e.Code)
}

// DecodeErrorKind distinguishes the ways a broadcast frame can be rejected.
type DecodeErrorKind int

const (
	DecodeTooShort DecodeErrorKind = iota
	DecodeTooLong
	DecodeBadTemperature
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeTooShort:
		return "too short"
	case DecodeTooLong:
		return "too long"
	case DecodeBadTemperature:
		return "implausible temperature"
	default:
		return "invalid"
	}
}

// DecodeError reports a malformed status broadcast. The frame is discarded;
// cached device state is never touched by a frame that fails to decode.
type DecodeError struct {
	Kind   DecodeErrorKind
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode status broadcast (%s): %d bytes", e.Kind, e.Length)
}
