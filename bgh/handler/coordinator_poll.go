package handler

import (
	"log/slog"
	"time"

	"bgh-aircon/bgh"
)

// pollLoop sends a status request to every registered unit on the fixed
// interval. Polling is best effort: a failed send is logged per unit and
// never delays the rest of the round.
func (c *StateCoordinator) pollLoop(done chan<- struct{}) {
	defer close(done)
	slog.Info("poll loop started", "interval", c.pollInterval)

	// First round immediately; consumers should not wait a full interval
	// for initial state.
	c.pollAll()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			slog.Info("poll loop stopped")
			return
		case <-ticker.C:
			c.pollAll()
		}
	}
}

func (c *StateCoordinator) pollAll() {
	frame := bgh.EncodeStatusRequest()
	for _, entry := range c.registry.entries() {
		if err := c.transport.SendTo(entry.ip, frame); err != nil {
			slog.Warn("status poll failed", "device", entry.id, "ip", entry.ip, "err", err)
		}
	}
}

// stalenessLoop turns quiet units unavailable. The check runs well inside
// the staleness window so the flip is observed close to the threshold, and
// each lapse emits exactly one DeviceStale notification.
func (c *StateCoordinator) stalenessLoop(done chan<- struct{}) {
	defer close(done)

	interval := c.stalenessThreshold / 5
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkStaleness()
		}
	}
}

func (c *StateCoordinator) checkStaleness() {
	now := time.Now()
	for _, entry := range c.registry.entries() {
		entry.mu.Lock()
		lapsed := entry.seen && !entry.removed && !entry.staleNotified &&
			now.Sub(entry.lastUpdated) >= c.stalenessThreshold
		if lapsed {
			entry.staleNotified = true
		}
		entry.mu.Unlock()

		if lapsed {
			state := entry.snapshot(now, c.stalenessThreshold)
			slog.Warn("device went stale",
				"device", state.ID,
				"last_updated", state.LastUpdated,
			)
			c.notify(DeviceNotification{Type: DeviceStale, State: state})
		}
	}
}
