package server

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgh-aircon/bgh"
	"bgh-aircon/bgh/handler"
	"bgh-aircon/protocol"
)

// fakeTransport records outbound messages so handlers can be tested without
// sockets.
type fakeTransport struct {
	mu             sync.Mutex
	sent           map[string][][]byte
	broadcasts     [][]byte
	messageHandler func(connID string, message []byte) error
	connectHandler func(connID string) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][][]byte)}
}

func (t *fakeTransport) Start(options StartOptions) error { return nil }
func (t *fakeTransport) Stop() error                      { return nil }

func (t *fakeTransport) SetMessageHandler(handler func(connID string, message []byte) error) {
	t.messageHandler = handler
}

func (t *fakeTransport) SetConnectHandler(handler func(connID string) error) {
	t.connectHandler = handler
}

func (t *fakeTransport) SetDisconnectHandler(handler func(connID string)) {}

func (t *fakeTransport) SendMessage(connID string, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[connID] = append(t.sent[connID], message)
	return nil
}

func (t *fakeTransport) BroadcastMessage(message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcasts = append(t.broadcasts, message)
	return nil
}

func (t *fakeTransport) sentTo(connID string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent[connID]...)
}

func (t *fakeTransport) broadcastCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.broadcasts)
}

func (t *fakeTransport) lastBroadcast() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.broadcasts) == 0 {
		return nil
	}
	return t.broadcasts[len(t.broadcasts)-1]
}

// fakeDeviceClient records calls and serves canned state.
type fakeDeviceClient struct {
	mu         sync.Mutex
	states     map[handler.DeviceID]handler.DeviceState
	calls      []string
	lastMode   bgh.Mode
	lastFan    bgh.FanSpeed
	registered map[handler.DeviceID]net.IP
}

func newFakeDeviceClient() *fakeDeviceClient {
	return &fakeDeviceClient{
		states:     make(map[handler.DeviceID]handler.DeviceState),
		registered: make(map[handler.DeviceID]net.IP),
	}
}

func (c *fakeDeviceClient) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeDeviceClient) ListDevices() []handler.DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make([]handler.DeviceState, 0, len(c.states))
	for _, state := range c.states {
		states = append(states, state)
	}
	return states
}

func (c *fakeDeviceClient) GetState(id handler.DeviceID) (handler.DeviceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[id]
	if !ok {
		return handler.DeviceState{}, handler.ErrDeviceNotFound
	}
	return state, nil
}

func (c *fakeDeviceClient) SetMode(id handler.DeviceID, mode bgh.Mode) error {
	if _, err := c.GetState(id); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastMode = mode
	c.mu.Unlock()
	c.record("SetMode")
	return nil
}

func (c *fakeDeviceClient) SetFanSpeed(id handler.DeviceID, fan bgh.FanSpeed) error {
	if _, err := c.GetState(id); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastFan = fan
	c.mu.Unlock()
	c.record("SetFanSpeed")
	return nil
}

func (c *fakeDeviceClient) SetPower(id handler.DeviceID, on bool) error {
	if _, err := c.GetState(id); err != nil {
		return err
	}
	c.record("SetPower")
	return nil
}

func (c *fakeDeviceClient) SetTemperature(id handler.DeviceID, celsius float64) error {
	if _, err := c.GetState(id); err != nil {
		return err
	}
	return handler.ErrUnsupportedOperation
}

func (c *fakeDeviceClient) RequestStatus(id handler.DeviceID) error {
	if _, err := c.GetState(id); err != nil {
		return err
	}
	c.record("RequestStatus")
	return nil
}

func (c *fakeDeviceClient) RegisterDevice(id handler.DeviceID, ip net.IP) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[id] = ip
	c.states[id] = handler.DeviceState{ID: id, IP: ip, Mode: bgh.ModeOff, Fan: bgh.FanLow}
	return nil
}

func (c *fakeDeviceClient) UnregisterDevice(id handler.DeviceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.states[id]; !ok {
		return handler.ErrDeviceNotFound
	}
	delete(c.states, id)
	delete(c.registered, id)
	return nil
}

func newTestServer(t *testing.T) (*WebSocketServer, *fakeTransport, *fakeDeviceClient, *MockTimeProvider) {
	t.Helper()
	transport := newFakeTransport()
	deviceClient := newFakeDeviceClient()
	clock := NewMockTimeProvider(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ws := NewWebSocketServer(context.Background(), transport, deviceClient, clock, DefaultPushInterval)
	t.Cleanup(func() { ws.cancel() })
	return ws, transport, deviceClient, clock
}

func seededState(id handler.DeviceID) handler.DeviceState {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return handler.DeviceState{
		ID:          id,
		IP:          net.ParseIP("192.168.1.20"),
		Mode:        bgh.ModeCool,
		Fan:         bgh.FanHigh,
		Ambient:     bgh.Centidegrees(2313),
		Setpoint:    bgh.Centidegrees(2400),
		LastUpdated: now,
		Available:   true,
	}
}

func sendClientMessage(t *testing.T, transport *fakeTransport, connID string, msgType protocol.MessageType, payload interface{}, requestID string) {
	t.Helper()
	data, err := protocol.CreateMessage(msgType, payload, requestID)
	require.NoError(t, err)
	require.NoError(t, transport.messageHandler(connID, data))
}

func lastCommandResult(t *testing.T, transport *fakeTransport, connID string) (*protocol.Message, protocol.CommandResultPayload) {
	t.Helper()
	sent := transport.sentTo(connID)
	require.NotEmpty(t, sent)
	msg, err := protocol.ParseMessage(sent[len(sent)-1])
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeCommandResult, msg.Type)
	var result protocol.CommandResultPayload
	require.NoError(t, protocol.ParsePayload(msg, &result))
	return msg, result
}

func TestWebSocketServer_InitialStateOnConnect(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	require.NoError(t, transport.connectHandler("conn-1"))

	sent := transport.sentTo("conn-1")
	require.Len(t, sent, 1)

	msg, err := protocol.ParseMessage(sent[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeInitialState, msg.Type)

	var payload protocol.InitialStatePayload
	require.NoError(t, protocol.ParsePayload(msg, &payload))
	require.Contains(t, payload.Devices, "living")
	device := payload.Devices["living"]
	assert.Equal(t, "cool", device.Mode)
	assert.Equal(t, "high", device.FanSpeed)
	require.NotNil(t, device.AmbientTemperature)
	assert.InDelta(t, 23.13, *device.AmbientTemperature, 0.001)
	assert.True(t, device.Available)
}

func TestWebSocketServer_GetState(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeGetState, protocol.GetStatePayload{Target: "living"}, "req-1")

	msg, result := lastCommandResult(t, transport, "conn-1")
	assert.Equal(t, "req-1", msg.RequestID)
	require.True(t, result.Success)

	var device protocol.Device
	require.NoError(t, json.Unmarshal(result.Data, &device))
	assert.Equal(t, "living", device.ID)
	require.NotNil(t, device.SetpointTemperature)
	assert.InDelta(t, 24.0, *device.SetpointTemperature, 0.001)
}

func TestWebSocketServer_GetStateUnknownDevice(t *testing.T) {
	_, transport, _, _ := newTestServer(t)

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeGetState, protocol.GetStatePayload{Target: "ghost"}, "req-2")

	_, result := lastCommandResult(t, transport, "conn-1")
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, protocol.ErrorCodeDeviceNotFound, result.Error.Code)
}

func TestWebSocketServer_SetMode(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeSetMode, protocol.SetModePayload{Target: "living", Mode: "heat"}, "req-3")

	_, result := lastCommandResult(t, transport, "conn-1")
	assert.True(t, result.Success)
	assert.Equal(t, bgh.ModeHeat, deviceClient.lastMode)
}

func TestWebSocketServer_SetModeInvalidMode(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeSetMode, protocol.SetModePayload{Target: "living", Mode: "turbo"}, "req-4")

	_, result := lastCommandResult(t, transport, "conn-1")
	require.False(t, result.Success)
	assert.Equal(t, protocol.ErrorCodeInvalidParameters, result.Error.Code)
	assert.Empty(t, deviceClient.calls)
}

func TestWebSocketServer_SetFan(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeSetFan, protocol.SetFanPayload{Target: "living", FanSpeed: "medium"}, "req-5")

	_, result := lastCommandResult(t, transport, "conn-1")
	assert.True(t, result.Success)
	assert.Equal(t, bgh.FanMedium, deviceClient.lastFan)
}

func TestWebSocketServer_SetTemperatureNotSupported(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeSetTemperature, protocol.SetTemperaturePayload{Target: "living", Temperature: 22}, "req-6")

	_, result := lastCommandResult(t, transport, "conn-1")
	require.False(t, result.Success)
	assert.Equal(t, protocol.ErrorCodeNotSupported, result.Error.Code)
}

func TestWebSocketServer_RegisterDevice(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeRegisterDevice, protocol.RegisterDevicePayload{ID: "bedroom", IP: "192.168.1.31"}, "req-7")

	_, result := lastCommandResult(t, transport, "conn-1")
	assert.True(t, result.Success)
	assert.True(t, deviceClient.registered["bedroom"].Equal(net.ParseIP("192.168.1.31")))
}

func TestWebSocketServer_RegisterDeviceBadIP(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeRegisterDevice, protocol.RegisterDevicePayload{ID: "bedroom", IP: "not-an-ip"}, "req-8")

	_, result := lastCommandResult(t, transport, "conn-1")
	require.False(t, result.Success)
	assert.Equal(t, protocol.ErrorCodeInvalidParameters, result.Error.Code)
	assert.Empty(t, deviceClient.registered)
}

func TestWebSocketServer_UnregisterDevice(t *testing.T) {
	_, transport, deviceClient, _ := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	sendClientMessage(t, transport, "conn-1", protocol.MessageTypeUnregisterDevice, protocol.UnregisterDevicePayload{ID: "living"}, "req-9")

	_, result := lastCommandResult(t, transport, "conn-1")
	assert.True(t, result.Success)
	assert.Empty(t, deviceClient.states)
}

func TestWebSocketServer_MalformedMessage(t *testing.T) {
	_, transport, _, _ := newTestServer(t)

	require.NoError(t, transport.messageHandler("conn-1", []byte("{not json")))

	sent := transport.sentTo("conn-1")
	require.Len(t, sent, 1)
	msg, err := protocol.ParseMessage(sent[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeErrorNotification, msg.Type)

	var payload protocol.ErrorNotificationPayload
	require.NoError(t, protocol.ParsePayload(msg, &payload))
	assert.Equal(t, protocol.ErrorCodeInvalidRequestFormat, payload.Code)
}

func TestWebSocketServer_UnknownMessageType(t *testing.T) {
	_, transport, _, _ := newTestServer(t)

	sendClientMessage(t, transport, "conn-1", protocol.MessageType("reboot_universe"), struct{}{}, "")

	sent := transport.sentTo("conn-1")
	require.Len(t, sent, 1)
	msg, err := protocol.ParseMessage(sent[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeErrorNotification, msg.Type)
}

func TestWebSocketServer_NotificationBroadcast(t *testing.T) {
	ws, transport, _, _ := newTestServer(t)

	notifications := make(chan handler.DeviceNotification, 1)
	go ws.listenForNotifications(notifications)

	notifications <- handler.DeviceNotification{
		Type:  handler.StateChanged,
		State: seededState("living"),
	}

	require.Eventually(t, func() bool {
		return transport.broadcastCount() == 1
	}, time.Second, 10*time.Millisecond)

	msg, err := protocol.ParseMessage(transport.lastBroadcast())
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeStateChanged, msg.Type)

	var payload protocol.StateChangedPayload
	require.NoError(t, protocol.ParsePayload(msg, &payload))
	assert.Equal(t, "living", payload.Device.ID)
}

func TestWebSocketServer_StaleNotificationBroadcast(t *testing.T) {
	ws, transport, _, _ := newTestServer(t)

	notifications := make(chan handler.DeviceNotification, 1)
	go ws.listenForNotifications(notifications)

	stale := seededState("living")
	stale.Available = false
	notifications <- handler.DeviceNotification{Type: handler.DeviceStale, State: stale}

	require.Eventually(t, func() bool {
		return transport.broadcastCount() == 1
	}, time.Second, 10*time.Millisecond)

	msg, err := protocol.ParseMessage(transport.lastBroadcast())
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeDeviceStale, msg.Type)

	var payload protocol.DeviceStalePayload
	require.NoError(t, protocol.ParsePayload(msg, &payload))
	assert.False(t, payload.Device.Available)
}

func TestWebSocketServer_PeriodicStatePush(t *testing.T) {
	ws, transport, deviceClient, clock := newTestServer(t)
	deviceClient.states["living"] = seededState("living")

	go ws.periodicStatePush()

	// Give the loop a moment to arm its timer before advancing.
	require.Eventually(t, func() bool {
		clock.Advance(DefaultPushInterval)
		return transport.broadcastCount() >= 1
	}, time.Second, 10*time.Millisecond)

	msg, err := protocol.ParseMessage(transport.lastBroadcast())
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeInitialState, msg.Type)
}
