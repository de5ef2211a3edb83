package handler

import (
	"context"
	"net"
	"time"

	"bgh-aircon/bgh"
)

// DeviceID is the stable identifier the host platform uses for a unit. The
// wire protocol itself carries no identifier; correlation is by IP only.
type DeviceID string

// DeviceState is a read snapshot of a unit's best-known state. Readers
// always see a fully-formed snapshot; partial updates are never visible.
type DeviceState struct {
	ID          DeviceID
	IP          net.IP
	Mode        bgh.Mode
	Fan         bgh.FanSpeed
	Ambient     bgh.Centidegrees
	Setpoint    bgh.Centidegrees
	LastUpdated time.Time // zero until the first valid broadcast
	Available   bool      // false until the first valid broadcast, and after the staleness window lapses
}

// Transport is the UDP capability the coordinator needs. Implemented by
// network.UDPTransport; tests substitute a fake.
type Transport interface {
	SendTo(dstIP net.IP, data []byte) error
	Receive(ctx context.Context) ([]byte, *net.UDPAddr, error)
	Close() error
}
