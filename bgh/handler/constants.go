package handler

import (
	"errors"
	"time"
)

const (
	// DefaultPollInterval is the cadence of active status polling.
	DefaultPollInterval = 10 * time.Second

	// DefaultStalenessThreshold is how long a unit may stay quiet before
	// its cached state is reported unavailable. 2.5× the poll cadence, so
	// a single lost poll/broadcast pair does not flap availability.
	DefaultStalenessThreshold = 25 * time.Second

	// DefaultBroadcastRateLimit caps processed broadcasts per second per
	// unit, so one flooding unit cannot starve the others.
	DefaultBroadcastRateLimit = 10

	notificationBufferSize = 100
)

var (
	// ErrUnsupportedOperation is returned for operations the wire
	// protocol cannot express, such as writing the setpoint temperature.
	ErrUnsupportedOperation = errors.New("operation not supported by the wire protocol")

	// ErrDeviceNotFound is returned when a command targets an
	// unregistered device ID.
	ErrDeviceNotFound = errors.New("device not registered")
)

// NotificationType identifies the kind of device notification.
type NotificationType int

const (
	DeviceAdded NotificationType = iota
	DeviceRemoved
	StateChanged
	DeviceStale
)

func (t NotificationType) String() string {
	switch t {
	case DeviceAdded:
		return "device_added"
	case DeviceRemoved:
		return "device_removed"
	case StateChanged:
		return "state_changed"
	case DeviceStale:
		return "device_stale"
	default:
		return "unknown"
	}
}

// DeviceNotification is pushed on the coordinator's notification channel
// whenever a device's cached state or availability changes.
type DeviceNotification struct {
	Type  NotificationType
	State DeviceState
}
