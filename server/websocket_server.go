package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"bgh-aircon/bgh"
	"bgh-aircon/bgh/handler"
	"bgh-aircon/client"
	"bgh-aircon/protocol"
)

// DefaultPushInterval is how often the full device table is re-broadcast to
// connected clients when the config does not say otherwise.
const DefaultPushInterval = time.Minute

// WebSocketServer bridges the coordinator to host platforms over the JSON
// WebSocket protocol. Inbound messages are mapped onto a DeviceClient;
// coordinator notifications are fanned out to every connected client.
type WebSocketServer struct {
	ctx          context.Context
	cancel       context.CancelFunc
	transport    WebSocketTransport
	client       client.DeviceClient
	timeProvider TimeProvider
	pushInterval time.Duration
	startupTime  time.Time
}

// NewWebSocketServer wires the transport handlers. pushInterval sets the
// periodic full-state broadcast cadence; zero or negative disables it.
func NewWebSocketServer(ctx context.Context, transport WebSocketTransport, deviceClient client.DeviceClient, timeProvider TimeProvider, pushInterval time.Duration) *WebSocketServer {
	serverCtx, cancel := context.WithCancel(ctx)

	ws := &WebSocketServer{
		ctx:          serverCtx,
		cancel:       cancel,
		transport:    transport,
		client:       deviceClient,
		timeProvider: timeProvider,
		pushInterval: pushInterval,
		startupTime:  timeProvider.Now(),
	}

	transport.SetMessageHandler(ws.handleMessage)
	transport.SetConnectHandler(ws.handleConnect)
	transport.SetDisconnectHandler(func(connID string) {
		slog.Info("Client disconnected", "connID", connID)
	})

	return ws
}

// Start serves until Stop. Notifications must come from the coordinator's
// channel; the caller hands it over so the server owns draining it.
func (s *WebSocketServer) Start(options StartOptions, notifications <-chan handler.DeviceNotification) error {
	go s.listenForNotifications(notifications)
	if s.pushInterval > 0 {
		go s.periodicStatePush()
	}
	return s.transport.Start(options)
}

func (s *WebSocketServer) Stop() error {
	s.cancel()
	return s.transport.Stop()
}

// listenForNotifications translates coordinator notifications into broadcast
// messages until the channel closes or the server stops.
func (s *WebSocketServer) listenForNotifications(notifications <-chan handler.DeviceNotification) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			s.broadcastNotification(notification)
		}
	}
}

func (s *WebSocketServer) broadcastNotification(notification handler.DeviceNotification) {
	var (
		msgType protocol.MessageType
		payload interface{}
	)

	device := protocol.DeviceToProtocol(notification.State)

	switch notification.Type {
	case handler.DeviceAdded:
		msgType = protocol.MessageTypeDeviceAdded
		payload = protocol.DeviceAddedPayload{Device: device}
	case handler.DeviceRemoved:
		msgType = protocol.MessageTypeDeviceRemoved
		payload = protocol.DeviceRemovedPayload{ID: string(notification.State.ID)}
	case handler.StateChanged:
		msgType = protocol.MessageTypeStateChanged
		payload = protocol.StateChangedPayload{Device: device}
	case handler.DeviceStale:
		msgType = protocol.MessageTypeDeviceStale
		payload = protocol.DeviceStalePayload{Device: device}
	default:
		slog.Warn("Unknown notification type", "type", notification.Type)
		return
	}

	data, err := protocol.CreateMessage(msgType, payload, "")
	if err != nil {
		slog.Error("Error creating notification message", "err", err, "type", msgType)
		return
	}
	if err := s.transport.BroadcastMessage(data); err != nil {
		slog.Error("Error broadcasting notification", "err", err, "type", msgType)
	}
}

// periodicStatePush re-sends the full device table so clients recover from
// any missed notifications.
func (s *WebSocketServer) periodicStatePush() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.timeProvider.After(s.pushInterval):
			data, err := s.initialStateMessage()
			if err != nil {
				slog.Error("Error building periodic state message", "err", err)
				continue
			}
			if err := s.transport.BroadcastMessage(data); err != nil {
				slog.Error("Error broadcasting periodic state", "err", err)
			}
		}
	}
}

func (s *WebSocketServer) initialStateMessage() ([]byte, error) {
	devices := make(map[string]protocol.Device)
	for _, state := range s.client.ListDevices() {
		devices[string(state.ID)] = protocol.DeviceToProtocol(state)
	}
	payload := protocol.InitialStatePayload{
		Devices:           devices,
		ServerStartupTime: s.startupTime,
	}
	return protocol.CreateMessage(protocol.MessageTypeInitialState, payload, "")
}

func (s *WebSocketServer) handleConnect(connID string) error {
	slog.Info("Client connected", "connID", connID)
	data, err := s.initialStateMessage()
	if err != nil {
		return fmt.Errorf("failed to build initial state: %w", err)
	}
	return s.transport.SendMessage(connID, data)
}

// handleMessage dispatches one inbound client message.
func (s *WebSocketServer) handleMessage(connID string, message []byte) error {
	msg, err := protocol.ParseMessage(message)
	if err != nil {
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidRequestFormat, fmt.Sprintf("invalid message: %v", err))
	}

	switch msg.Type {
	case protocol.MessageTypeListDevices:
		return s.handleListDevices(connID, msg)
	case protocol.MessageTypeGetState:
		return s.handleGetState(connID, msg)
	case protocol.MessageTypeSetMode:
		return s.handleSetMode(connID, msg)
	case protocol.MessageTypeSetFan:
		return s.handleSetFan(connID, msg)
	case protocol.MessageTypeSetPower:
		return s.handleSetPower(connID, msg)
	case protocol.MessageTypeSetTemperature:
		return s.handleSetTemperature(connID, msg)
	case protocol.MessageTypeRequestStatus:
		return s.handleRequestStatus(connID, msg)
	case protocol.MessageTypeRegisterDevice:
		return s.handleRegisterDevice(connID, msg)
	case protocol.MessageTypeUnregisterDevice:
		return s.handleUnregisterDevice(connID, msg)
	default:
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidRequestFormat, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *WebSocketServer) handleListDevices(connID string, msg *protocol.Message) error {
	devices := make(map[string]protocol.Device)
	for _, state := range s.client.ListDevices() {
		devices[string(state.ID)] = protocol.DeviceToProtocol(state)
	}
	data, err := json.Marshal(devices)
	if err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInternalServerError, err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, data)
}

func (s *WebSocketServer) handleGetState(connID string, msg *protocol.Message) error {
	var payload protocol.GetStatePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	state, err := s.client.GetState(handler.DeviceID(payload.Target))
	if err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}

	data, err := json.Marshal(protocol.DeviceToProtocol(state))
	if err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInternalServerError, err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, data)
}

func (s *WebSocketServer) handleSetMode(connID string, msg *protocol.Message) error {
	var payload protocol.SetModePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	mode, ok := bgh.ParseMode(payload.Mode)
	if !ok {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidParameters, fmt.Sprintf("unknown mode: %s", payload.Mode))
	}
	if err := s.client.SetMode(handler.DeviceID(payload.Target), mode); err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) handleSetFan(connID string, msg *protocol.Message) error {
	var payload protocol.SetFanPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	fan, ok := bgh.ParseFanSpeed(payload.FanSpeed)
	if !ok {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidParameters, fmt.Sprintf("unknown fan speed: %s", payload.FanSpeed))
	}
	if err := s.client.SetFanSpeed(handler.DeviceID(payload.Target), fan); err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) handleSetPower(connID string, msg *protocol.Message) error {
	var payload protocol.SetPowerPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	if err := s.client.SetPower(handler.DeviceID(payload.Target), payload.On); err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) handleSetTemperature(connID string, msg *protocol.Message) error {
	var payload protocol.SetTemperaturePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	err := s.client.SetTemperature(handler.DeviceID(payload.Target), payload.Temperature)
	if err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) handleRequestStatus(connID string, msg *protocol.Message) error {
	var payload protocol.RequestStatusPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	if err := s.client.RequestStatus(handler.DeviceID(payload.Target)); err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) handleRegisterDevice(connID string, msg *protocol.Message) error {
	var payload protocol.RegisterDevicePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	ip := net.ParseIP(payload.IP)
	if ip == nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidParameters, fmt.Sprintf("invalid IP address: %s", payload.IP))
	}
	if err := s.client.RegisterDevice(handler.DeviceID(payload.ID), ip); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidParameters, err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) handleUnregisterDevice(connID string, msg *protocol.Message) error {
	var payload protocol.UnregisterDevicePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendCommandError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, err.Error())
	}

	if err := s.client.UnregisterDevice(handler.DeviceID(payload.ID)); err != nil {
		return s.sendCommandError(connID, msg.RequestID, errorCodeFor(err), err.Error())
	}
	return s.sendCommandSuccess(connID, msg.RequestID, nil)
}

func (s *WebSocketServer) sendCommandSuccess(connID, requestID string, data json.RawMessage) error {
	payload := protocol.CommandResultPayload{Success: true, Data: data}
	msg, err := protocol.CreateMessage(protocol.MessageTypeCommandResult, payload, requestID)
	if err != nil {
		return err
	}
	return s.transport.SendMessage(connID, msg)
}

func (s *WebSocketServer) sendCommandError(connID, requestID string, code protocol.ErrorCode, message string) error {
	payload := protocol.CommandResultPayload{
		Success: false,
		Error:   &protocol.Error{Code: code, Message: message},
	}
	msg, err := protocol.CreateMessage(protocol.MessageTypeCommandResult, payload, requestID)
	if err != nil {
		return err
	}
	return s.transport.SendMessage(connID, msg)
}

func (s *WebSocketServer) sendErrorNotification(connID string, code protocol.ErrorCode, message string) error {
	payload := protocol.ErrorNotificationPayload{Code: code, Message: message}
	msg, err := protocol.CreateMessage(protocol.MessageTypeErrorNotification, payload, "")
	if err != nil {
		return err
	}
	return s.transport.SendMessage(connID, msg)
}

// errorCodeFor maps coordinator errors onto protocol error codes.
func errorCodeFor(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, handler.ErrDeviceNotFound):
		return protocol.ErrorCodeDeviceNotFound
	case errors.Is(err, handler.ErrUnsupportedOperation):
		return protocol.ErrorCodeNotSupported
	default:
		return protocol.ErrorCodeInternalServerError
	}
}
