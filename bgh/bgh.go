package bgh

import (
	"encoding/binary"
	"encoding/hex"
)

// BGH Smart Control units speak a fixed-layout binary protocol over UDP.
// Commands are unicast to the unit on CommandPort; the unit answers (and
// reports spontaneous changes) by broadcasting a status frame to the subnet
// on BroadcastPort. The payload carries no device identifier usable for
// correlation; the sender IP is the only key.
const (
	CommandPort   = 20910 // unit listens for command frames here
	BroadcastPort = 20911 // units broadcast status frames to this port

	BroadcastFrameSize = 29  // status broadcast frame, exact length
	MaxDatagramSize    = 100 // anything larger is dropped unparsed
)

// Byte offsets within the fixed frame layouts.
const (
	commandModeOffset = 17
	commandFanOffset  = 18

	broadcastModeOffset     = 18
	broadcastFanOffset      = 19
	broadcastAmbientOffset  = 21 // little-endian uint16, centidegrees
	broadcastSetpointOffset = 23 // little-endian uint16, centidegrees
)

// Frame templates. Everything except the mode/fan slots is opaque: the
// values were captured from the vendor app's traffic and must be sent
// verbatim, they are not derived from anything.
var (
	statusRequestFrame   = mustHex("00000000000000accf23aa3190590001e4")
	commandFrameTemplate = mustHex("00000000000000accf23aa3190f60001610402000080")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeCommand builds a control command frame that asserts the given
// operating mode and fan speed. The rest of the frame is a fixed template.
func EncodeCommand(mode Mode, fan FanSpeed) ([]byte, error) {
	if !mode.Known() {
		return nil, &EncodeError{Field: "mode", Code: byte(mode)}
	}
	if !fan.Known() {
		return nil, &EncodeError{Field: "fan speed", Code: byte(fan)}
	}
	frame := make([]byte, len(commandFrameTemplate))
	copy(frame, commandFrameTemplate)
	frame[commandModeOffset] = byte(mode)
	frame[commandFanOffset] = byte(fan)
	return frame, nil
}

// EncodeStatusRequest returns the frame that asks a unit to broadcast a
// fresh status report without changing its operating state.
func EncodeStatusRequest() []byte {
	frame := make([]byte, len(statusRequestFrame))
	copy(frame, statusRequestFrame)
	return frame
}

// StatusReport holds the fields decoded from a status broadcast frame.
// Temperatures stay in centidegrees here; conversion to °C happens at the
// presentation boundary only.
type StatusReport struct {
	Mode     Mode
	Fan      FanSpeed
	Ambient  Centidegrees
	Setpoint Centidegrees
}

// DecodeBroadcast parses a status broadcast frame. The frame must be exactly
// BroadcastFrameSize bytes. Unknown mode/fan codes are preserved as-is
// (units report transient codes); implausible temperatures reject the frame.
func DecodeBroadcast(data []byte) (StatusReport, error) {
	if len(data) < BroadcastFrameSize {
		return StatusReport{}, &DecodeError{Kind: DecodeTooShort, Length: len(data)}
	}
	if len(data) > BroadcastFrameSize {
		return StatusReport{}, &DecodeError{Kind: DecodeTooLong, Length: len(data)}
	}

	report := StatusReport{
		Mode:     Mode(data[broadcastModeOffset]),
		Fan:      FanSpeed(data[broadcastFanOffset]),
		Ambient:  Centidegrees(binary.LittleEndian.Uint16(data[broadcastAmbientOffset:])),
		Setpoint: Centidegrees(binary.LittleEndian.Uint16(data[broadcastSetpointOffset:])),
	}

	// Plausibility limits observed on real units: ambient 0-50°C,
	// setpoint 16-30°C. Anything outside is a corrupt frame.
	if report.Ambient < 0 || report.Ambient > 5000 {
		return StatusReport{}, &DecodeError{Kind: DecodeBadTemperature, Length: len(data)}
	}
	if report.Setpoint < 1600 || report.Setpoint > 3000 {
		return StatusReport{}, &DecodeError{Kind: DecodeBadTemperature, Length: len(data)}
	}

	return report, nil
}

// ValidFrameStructure reports whether a broadcast-sized datagram matches the
// fixed header/footer of a status frame: byte 0 is 0x00, bytes 7..12 are
// 0xFF, byte 14 is 0x00 or 0x01. Frames failing this are other traffic on
// the same port, not decode errors.
func ValidFrameStructure(data []byte) bool {
	if len(data) != BroadcastFrameSize {
		return false
	}
	if data[0] != 0x00 {
		return false
	}
	for _, b := range data[7:13] {
		if b != 0xFF {
			return false
		}
	}
	return data[14] == 0x00 || data[14] == 0x01
}

// FrameKind classifies inbound datagrams by length. Units emit several frame
// types on the broadcast port; only status broadcasts carry state.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameStatusBroadcast
	FrameAck             // command acknowledgment
	FrameDiscovery       // discovery beacon
	FrameControlResponse // response to a control command
)

func (k FrameKind) String() string {
	switch k {
	case FrameStatusBroadcast:
		return "status broadcast"
	case FrameAck:
		return "ack"
	case FrameDiscovery:
		return "discovery"
	case FrameControlResponse:
		return "control response"
	default:
		return "unknown"
	}
}

// ClassifyFrame determines the kind of an inbound datagram from its length.
func ClassifyFrame(data []byte) FrameKind {
	switch len(data) {
	case BroadcastFrameSize:
		return FrameStatusBroadcast
	case 22:
		return FrameAck
	case 108:
		return FrameDiscovery
	case 46, 47:
		return FrameControlResponse
	default:
		return FrameUnknown
	}
}
