package handler

import (
	"fmt"
	"log/slog"

	"bgh-aircon/bgh"
)

// Command issuance is fire-and-forget: there is no synchronous
// acknowledgment on the wire, so the cached state is deliberately NOT
// mutated here. The unit broadcasts a fresh status frame after applying a
// change, and only that broadcast updates the cache. A just-issued command
// is pending until the cache reflects it.

// SetMode asserts an operating mode, keeping the unit's last known fan
// speed.
func (c *StateCoordinator) SetMode(id DeviceID, mode bgh.Mode) error {
	entry := c.registry.get(id)
	if entry == nil {
		return ErrDeviceNotFound
	}
	_, fan := entry.currentModeFan()
	return c.sendCommand(entry, mode, fan)
}

// SetFanSpeed asserts a fan speed, keeping the unit's last known mode.
func (c *StateCoordinator) SetFanSpeed(id DeviceID, fan bgh.FanSpeed) error {
	entry := c.registry.get(id)
	if entry == nil {
		return ErrDeviceNotFound
	}
	mode, _ := entry.currentModeFan()
	return c.sendCommand(entry, mode, fan)
}

// SetModeAndFan asserts both fields in a single command frame.
func (c *StateCoordinator) SetModeAndFan(id DeviceID, mode bgh.Mode, fan bgh.FanSpeed) error {
	entry := c.registry.get(id)
	if entry == nil {
		return ErrDeviceNotFound
	}
	return c.sendCommand(entry, mode, fan)
}

// TurnOn switches the unit to cooling, the conventional power-on mode.
func (c *StateCoordinator) TurnOn(id DeviceID) error {
	return c.SetMode(id, bgh.ModeCool)
}

// TurnOff switches the unit off.
func (c *StateCoordinator) TurnOff(id DeviceID) error {
	return c.SetMode(id, bgh.ModeOff)
}

// SetTemperature always fails: the wire protocol has no setpoint write.
// Reporting this clearly beats silently appearing to succeed.
func (c *StateCoordinator) SetTemperature(id DeviceID, _ float64) error {
	if c.registry.get(id) == nil {
		return ErrDeviceNotFound
	}
	return ErrUnsupportedOperation
}

// RequestStatus asks one unit to broadcast a fresh status frame without
// changing its operating state.
func (c *StateCoordinator) RequestStatus(id DeviceID) error {
	entry := c.registry.get(id)
	if entry == nil {
		return ErrDeviceNotFound
	}
	if err := c.transport.SendTo(entry.ip, bgh.EncodeStatusRequest()); err != nil {
		return fmt.Errorf("status request to %s: %w", id, err)
	}
	return nil
}

func (c *StateCoordinator) sendCommand(entry *deviceEntry, mode bgh.Mode, fan bgh.FanSpeed) error {
	frame, err := bgh.EncodeCommand(mode, fan)
	if err != nil {
		return err
	}
	if err := c.transport.SendTo(entry.ip, frame); err != nil {
		return fmt.Errorf("command to %s: %w", entry.id, err)
	}
	slog.Info("command sent",
		"device", entry.id,
		"mode", mode.String(),
		"fan", fan.String(),
	)
	return nil
}
