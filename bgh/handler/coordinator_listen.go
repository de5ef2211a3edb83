package handler

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"bgh-aircon/bgh"
)

// listenLoop drains the broadcast socket for the life of the process. Per
// datagram work is short and never blocks: resolve the source, decode,
// swap the cached state. Malformed traffic is logged and dropped; nothing
// that arrives here can terminate the loop except transport shutdown.
func (c *StateCoordinator) listenLoop(done chan<- struct{}) {
	defer close(done)
	slog.Info("broadcast listen loop started")

	for {
		data, addr, err := c.transport.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("broadcast listen loop stopped")
				return
			}
			slog.Error("receive failed", "err", err)
			continue
		}
		c.handleDatagram(data, addr)
	}
}

func (c *StateCoordinator) handleDatagram(data []byte, addr *net.UDPAddr) {
	entry := c.registry.resolveIP(addr.IP)
	if entry == nil {
		// Expected on a shared subnet; other households' units
		// broadcast to the same port.
		slog.Debug("datagram from unregistered source", "source", addr.IP, "bytes", len(data))
		return
	}

	switch kind := bgh.ClassifyFrame(data); kind {
	case bgh.FrameStatusBroadcast:
		// fall through to decode
	case bgh.FrameAck, bgh.FrameDiscovery, bgh.FrameControlResponse:
		// Routine traffic (discovery beacons run 108 bytes); skip quietly.
		slog.Debug("ignoring non-status frame", "source", addr.IP, "kind", kind.String())
		return
	default:
		if len(data) > bgh.MaxDatagramSize {
			slog.Warn("rejected oversized datagram", "source", addr.IP, "bytes", len(data))
			return
		}
		slog.Debug("ignoring unknown frame", "source", addr.IP, "bytes", len(data))
		return
	}

	if !entry.allowBroadcast(c.broadcastRateLimit) {
		slog.Warn("broadcast rate limit exceeded", "source", addr.IP)
		return
	}

	if !bgh.ValidFrameStructure(data) {
		slog.Warn("status-sized frame with invalid structure", "source", addr.IP)
		return
	}

	report, err := bgh.DecodeBroadcast(data)
	if err != nil {
		slog.Warn("failed to decode status broadcast", "source", addr.IP, "err", err)
		return
	}

	if !entry.applyReport(report, time.Now()) {
		// unregistered while the datagram was in flight
		return
	}

	state := c.snapshotOf(entry)
	slog.Debug("status broadcast applied",
		"device", state.ID,
		"mode", state.Mode.String(),
		"fan", state.Fan.String(),
		"ambient", state.Ambient.String(),
		"setpoint", state.Setpoint.String(),
	)
	c.notify(DeviceNotification{Type: StateChanged, State: state})
}
