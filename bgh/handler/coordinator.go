package handler

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// StateCoordinator ties the pieces together: it polls every registered unit
// on a fixed interval, drains the broadcast socket continuously, and keeps
// the registry's cached state fresh. The two loops share nothing but the
// registry and the transport; a slow or unreachable unit never delays the
// others.
type StateCoordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport Transport
	registry  *DeviceRegistry

	pollInterval       time.Duration
	stalenessThreshold time.Duration
	broadcastRateLimit float64 // per-device broadcasts per second

	// NotificationCh carries state-change and availability events toward
	// consumers (the WebSocket server). Sends never block the listen loop.
	NotificationCh chan DeviceNotification

	loopsDone chan struct{} // closed when listen, poll and staleness loops have all returned

	mu        sync.Mutex // guards started
	started   bool
	closeOnce sync.Once
	closeErr  error
}

// CoordinatorOptions tunes the coordinator; zero values select defaults.
type CoordinatorOptions struct {
	PollInterval       time.Duration
	StalenessThreshold time.Duration
	BroadcastRateLimit float64 // processed broadcasts per second, per unit
}

// NewStateCoordinator wires a coordinator to a transport and a registry.
func NewStateCoordinator(ctx context.Context, transport Transport, registry *DeviceRegistry, opts CoordinatorOptions) *StateCoordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StalenessThreshold <= 0 {
		opts.StalenessThreshold = DefaultStalenessThreshold
	}
	if opts.BroadcastRateLimit <= 0 {
		opts.BroadcastRateLimit = DefaultBroadcastRateLimit
	}

	coordCtx, cancel := context.WithCancel(ctx)
	return &StateCoordinator{
		ctx:                coordCtx,
		cancel:             cancel,
		transport:          transport,
		registry:           registry,
		broadcastRateLimit: opts.BroadcastRateLimit,
		pollInterval:       opts.PollInterval,
		stalenessThreshold: opts.StalenessThreshold,
		NotificationCh:     make(chan DeviceNotification, notificationBufferSize),
		loopsDone:          make(chan struct{}),
	}
}

// StartMainLoop launches the listen, poll and staleness loops. It returns
// immediately; the loops run until Close.
func (c *StateCoordinator) StartMainLoop() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	listenDone := make(chan struct{})
	pollDone := make(chan struct{})
	staleDone := make(chan struct{})
	go c.listenLoop(listenDone)
	go c.pollLoop(pollDone)
	go c.stalenessLoop(staleDone)
	go func() {
		<-listenDone
		<-pollDone
		<-staleDone
		close(c.loopsDone)
	}()

	slog.Info("state coordinator started",
		"poll_interval", c.pollInterval,
		"staleness_threshold", c.stalenessThreshold,
	)
}

// Close stops the loops, closes the transport and waits for the loops to
// terminate. The notification channel is closed last so consumers see all
// pending events. Close is idempotent; later calls return the first result.
func (c *StateCoordinator) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.transport.Close()
		if c.isStarted() {
			<-c.loopsDone
		}
		close(c.NotificationCh)
	})
	return c.closeErr
}

func (c *StateCoordinator) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// RegisterDevice adds a unit to the registry and polls it right away so the
// first state snapshot does not wait for the next poll tick.
func (c *StateCoordinator) RegisterDevice(id DeviceID, ip net.IP) error {
	isNew, err := c.registry.Register(id, ip)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	slog.Info("device registered", "device", id, "ip", ip)
	c.notify(DeviceNotification{Type: DeviceAdded, State: c.snapshotOf(c.registry.get(id))})

	if c.isStarted() {
		if err := c.RequestStatus(id); err != nil {
			// best effort; the poll loop retries on its next tick
			slog.Warn("initial status request failed", "device", id, "err", err)
		}
	}
	return nil
}

// UnregisterDevice removes a unit and destroys its cached state.
func (c *StateCoordinator) UnregisterDevice(id DeviceID) error {
	entry := c.registry.get(id)
	if entry == nil {
		return ErrDeviceNotFound
	}
	state := c.snapshotOf(entry)
	if !c.registry.Unregister(id) {
		return ErrDeviceNotFound
	}
	slog.Info("device unregistered", "device", id)
	c.notify(DeviceNotification{Type: DeviceRemoved, State: state})
	return nil
}

// GetState returns the current best-known snapshot for a unit.
func (c *StateCoordinator) GetState(id DeviceID) (DeviceState, error) {
	entry := c.registry.get(id)
	if entry == nil {
		return DeviceState{}, ErrDeviceNotFound
	}
	return c.snapshotOf(entry), nil
}

// ListDevices returns snapshots of every registered unit in ID order.
func (c *StateCoordinator) ListDevices() []DeviceState {
	entries := c.registry.entries()
	states := make([]DeviceState, 0, len(entries))
	now := time.Now()
	for _, entry := range entries {
		states = append(states, entry.snapshot(now, c.stalenessThreshold))
	}
	return states
}

func (c *StateCoordinator) snapshotOf(entry *deviceEntry) DeviceState {
	return entry.snapshot(time.Now(), c.stalenessThreshold)
}

// notify pushes a notification without ever blocking the caller; when the
// consumer lags behind the buffer, the event is dropped with a warning.
func (c *StateCoordinator) notify(n DeviceNotification) {
	select {
	case c.NotificationCh <- n:
	default:
		slog.Warn("notification channel full, dropping event",
			"type", n.Type, "device", n.State.ID)
	}
}
