// Package protocol defines the JSON messages exchanged between the
// coordinator's WebSocket server and the host platform. It is the only
// place where temperatures leave centidegrees: payloads carry °C floats.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of message being sent between client and server
type MessageType string

const (
	// Server -> Client message types
	MessageTypeInitialState      MessageType = "initial_state"
	MessageTypeStateChanged      MessageType = "state_changed"
	MessageTypeDeviceStale       MessageType = "device_stale"
	MessageTypeDeviceAdded       MessageType = "device_added"
	MessageTypeDeviceRemoved     MessageType = "device_removed"
	MessageTypeCommandResult     MessageType = "command_result"
	MessageTypeErrorNotification MessageType = "error_notification"

	// Client -> Server message types
	MessageTypeListDevices      MessageType = "list_devices"
	MessageTypeGetState         MessageType = "get_state"
	MessageTypeSetMode          MessageType = "set_mode"
	MessageTypeSetFan           MessageType = "set_fan"
	MessageTypeSetPower         MessageType = "set_power"
	MessageTypeSetTemperature   MessageType = "set_temperature"
	MessageTypeRequestStatus    MessageType = "request_status"
	MessageTypeRegisterDevice   MessageType = "register_device"
	MessageTypeUnregisterDevice MessageType = "unregister_device"
)

// ErrorCode defines error codes for error messages
type ErrorCode string

const (
	ErrorCodeInvalidRequestFormat ErrorCode = "INVALID_REQUEST_FORMAT"
	ErrorCodeInvalidParameters    ErrorCode = "INVALID_PARAMETERS"
	ErrorCodeDeviceNotFound       ErrorCode = "DEVICE_NOT_FOUND"
	ErrorCodeNotSupported         ErrorCode = "NOT_SUPPORTED"
	ErrorCodeTransportError       ErrorCode = "TRANSPORT_ERROR"
	ErrorCodeInternalServerError  ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Message is the base structure for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// Device is a unit's state snapshot as presented to the host platform.
// AmbientTemperature/SetpointTemperature are °C and omitted until the unit
// has broadcast at least once.
type Device struct {
	ID                  string     `json:"id"`
	IP                  string     `json:"ip"`
	Mode                string     `json:"mode"`
	FanSpeed            string     `json:"fanSpeed"`
	AmbientTemperature  *float64   `json:"ambientTemperature,omitempty"`
	SetpointTemperature *float64   `json:"setpointTemperature,omitempty"`
	LastUpdated         *time.Time `json:"lastUpdated,omitempty"`
	Available           bool       `json:"available"`
}

// Error represents an error in the WebSocket protocol
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// InitialStatePayload is the payload for the initial_state message
type InitialStatePayload struct {
	Devices           map[string]Device `json:"devices"`
	ServerStartupTime time.Time         `json:"serverStartupTime"`
}

// StateChangedPayload is the payload for the state_changed message
type StateChangedPayload struct {
	Device Device `json:"device"`
}

// DeviceStalePayload is the payload for the device_stale message
type DeviceStalePayload struct {
	Device Device `json:"device"`
}

// DeviceAddedPayload is the payload for the device_added message
type DeviceAddedPayload struct {
	Device Device `json:"device"`
}

// DeviceRemovedPayload is the payload for the device_removed message
type DeviceRemovedPayload struct {
	ID string `json:"id"`
}

// ErrorNotificationPayload is the payload for the error_notification message
type ErrorNotificationPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// CommandResultPayload is the payload for the command_result message
type CommandResultPayload struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// GetStatePayload is the payload for the get_state message
type GetStatePayload struct {
	Target string `json:"target"`
}

// SetModePayload is the payload for the set_mode message
type SetModePayload struct {
	Target string `json:"target"`
	Mode   string `json:"mode"`
}

// SetFanPayload is the payload for the set_fan message
type SetFanPayload struct {
	Target   string `json:"target"`
	FanSpeed string `json:"fanSpeed"`
}

// SetPowerPayload is the payload for the set_power message
type SetPowerPayload struct {
	Target string `json:"target"`
	On     bool   `json:"on"`
}

// SetTemperaturePayload is the payload for the set_temperature message.
// Always answered with NOT_SUPPORTED; the wire protocol cannot express it.
type SetTemperaturePayload struct {
	Target      string  `json:"target"`
	Temperature float64 `json:"temperature"`
}

// RequestStatusPayload is the payload for the request_status message
type RequestStatusPayload struct {
	Target string `json:"target"`
}

// RegisterDevicePayload is the payload for the register_device message
type RegisterDevicePayload struct {
	ID string `json:"id"`
	IP string `json:"ip"`
}

// UnregisterDevicePayload is the payload for the unregister_device message
type UnregisterDevicePayload struct {
	ID string `json:"id"`
}

// CreateMessage creates a new Message with the given type and payload
func CreateMessage(msgType MessageType, payload interface{}, requestID string) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	msg := Message{
		Type:      msgType,
		Payload:   payloadBytes,
		RequestID: requestID,
	}

	return json.Marshal(msg)
}

// ParseMessage parses a JSON message into a Message struct
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload parses the payload of a message into the given struct
func ParsePayload(msg *Message, payload interface{}) error {
	return json.Unmarshal(msg.Payload, payload)
}
