package protocol

import (
	"bgh-aircon/bgh/handler"
)

// DeviceToProtocol converts a coordinator snapshot into its API
// representation. Centidegrees become °C here and nowhere else; a unit
// that has never broadcast gets no temperatures at all.
func DeviceToProtocol(state handler.DeviceState) Device {
	d := Device{
		ID:        string(state.ID),
		IP:        state.IP.String(),
		Mode:      state.Mode.String(),
		FanSpeed:  state.Fan.String(),
		Available: state.Available,
	}
	if !state.LastUpdated.IsZero() {
		t := state.LastUpdated
		d.LastUpdated = &t
		ambient := state.Ambient.Celsius()
		setpoint := state.Setpoint.Celsius()
		d.AmbientTemperature = &ambient
		d.SetpointTemperature = &setpoint
	}
	return d
}
