package client

import (
	"net"

	"bgh-aircon/bgh"
	"bgh-aircon/bgh/handler"
)

// LocalClient implements DeviceClient directly on top of an in-process
// StateCoordinator.
type LocalClient struct {
	coordinator *handler.StateCoordinator
}

var _ DeviceClient = (*LocalClient)(nil)

func NewLocalClient(coordinator *handler.StateCoordinator) *LocalClient {
	return &LocalClient{coordinator: coordinator}
}

func (c *LocalClient) ListDevices() []handler.DeviceState {
	return c.coordinator.ListDevices()
}

func (c *LocalClient) GetState(id handler.DeviceID) (handler.DeviceState, error) {
	return c.coordinator.GetState(id)
}

func (c *LocalClient) SetMode(id handler.DeviceID, mode bgh.Mode) error {
	return c.coordinator.SetMode(id, mode)
}

func (c *LocalClient) SetFanSpeed(id handler.DeviceID, fan bgh.FanSpeed) error {
	return c.coordinator.SetFanSpeed(id, fan)
}

func (c *LocalClient) SetPower(id handler.DeviceID, on bool) error {
	if on {
		return c.coordinator.TurnOn(id)
	}
	return c.coordinator.TurnOff(id)
}

func (c *LocalClient) SetTemperature(id handler.DeviceID, celsius float64) error {
	return c.coordinator.SetTemperature(id, celsius)
}

func (c *LocalClient) RequestStatus(id handler.DeviceID) error {
	return c.coordinator.RequestStatus(id)
}

func (c *LocalClient) RegisterDevice(id handler.DeviceID, ip net.IP) error {
	return c.coordinator.RegisterDevice(id, ip)
}

func (c *LocalClient) UnregisterDevice(id handler.DeviceID) error {
	return c.coordinator.UnregisterDevice(id)
}
