// Package client defines the narrow interface the console and the
// WebSocket server use to operate units, decoupled from the coordinator's
// concrete type.
package client

import (
	"net"

	"bgh-aircon/bgh"
	"bgh-aircon/bgh/handler"
)

// DeviceClient is the collaborator-facing surface: read cached snapshots,
// issue fire-and-forget commands, and manage registrations.
type DeviceClient interface {
	// ListDevices returns snapshots of every registered unit in ID order.
	ListDevices() []handler.DeviceState

	// GetState returns the current best-known snapshot for a unit.
	GetState(id handler.DeviceID) (handler.DeviceState, error)

	// SetMode asserts an operating mode, keeping the last known fan speed.
	SetMode(id handler.DeviceID, mode bgh.Mode) error

	// SetFanSpeed asserts a fan speed, keeping the last known mode.
	SetFanSpeed(id handler.DeviceID, fan bgh.FanSpeed) error

	// SetPower turns the unit on (cooling) or off.
	SetPower(id handler.DeviceID, on bool) error

	// SetTemperature always returns handler.ErrUnsupportedOperation; the
	// wire protocol has no setpoint write.
	SetTemperature(id handler.DeviceID, celsius float64) error

	// RequestStatus asks a unit to broadcast a fresh status frame.
	RequestStatus(id handler.DeviceID) error

	// RegisterDevice adds a unit, UnregisterDevice removes it and its
	// cached state.
	RegisterDevice(id handler.DeviceID, ip net.IP) error
	UnregisterDevice(id handler.DeviceID) error
}
