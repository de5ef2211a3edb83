package handler

import (
	"fmt"
	"net"
	"sync"
	"time"

	"bgh-aircon/bgh"

	"golang.org/x/exp/slices"
)

// deviceEntry is the registry's per-unit record. The entry's own mutex
// guards the cached state so listen-path updates, staleness checks and
// consumer reads never tear a snapshot.
type deviceEntry struct {
	mu            sync.RWMutex
	id            DeviceID
	ip            net.IP
	report        bgh.StatusReport
	lastUpdated   time.Time
	seen          bool // at least one valid broadcast attributed to this unit
	removed       bool // unregistered; in-flight updates must not land
	staleNotified bool // DeviceStale already emitted for the current lapse
	limiter       *TokenBucket
}

// allowBroadcast takes one token from the unit's own rate limiter. Each
// entry has its own bucket: one unit flooding the broadcast port must not
// starve the others' legitimate broadcasts.
func (e *deviceEntry) allowBroadcast(rate float64) bool {
	e.mu.Lock()
	if e.limiter == nil {
		e.limiter = NewTokenBucket(rate, rate)
	}
	limiter := e.limiter
	e.mu.Unlock()
	return limiter.Consume()
}

// applyReport replaces the cached state with a freshly decoded broadcast.
// Updates are applied in arrival order under the entry lock. Returns false
// when the entry was unregistered while the datagram was in flight.
func (e *deviceEntry) applyReport(report bgh.StatusReport, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.report = report
	e.lastUpdated = now
	e.seen = true
	e.staleNotified = false
	return true
}

// snapshot builds a consistent read copy. Availability is derived: a unit
// that has never broadcast is unavailable, as is one whose last broadcast
// is older than the staleness threshold.
func (e *deviceEntry) snapshot(now time.Time, staleness time.Duration) DeviceState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return DeviceState{
		ID:          e.id,
		IP:          e.ip,
		Mode:        e.report.Mode,
		Fan:         e.report.Fan,
		Ambient:     e.report.Ambient,
		Setpoint:    e.report.Setpoint,
		LastUpdated: e.lastUpdated,
		Available:   e.seen && now.Sub(e.lastUpdated) < staleness,
	}
}

// currentModeFan returns the last reported mode and fan, with the defaults
// a factory-fresh unit uses when nothing has been heard yet.
func (e *deviceEntry) currentModeFan() (bgh.Mode, bgh.FanSpeed) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.seen {
		return bgh.ModeOff, bgh.FanLow
	}
	mode, fan := e.report.Mode, e.report.Fan
	if !mode.Known() {
		mode = bgh.ModeOff
	}
	if !fan.Known() {
		fan = bgh.FanLow
	}
	return mode, fan
}

// DeviceRegistry maps registered units both ways: by the host platform's
// device ID for commands and by source IP for inbound broadcast
// correlation. Exactly one entry per unit; registration is static for the
// process lifetime apart from explicit reconfiguration.
type DeviceRegistry struct {
	mu   sync.RWMutex
	byID map[DeviceID]*deviceEntry
	byIP map[string]*deviceEntry
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		byID: make(map[DeviceID]*deviceEntry),
		byIP: make(map[string]*deviceEntry),
	}
}

// Register adds a unit, or re-registers an existing one at a new address.
// Idempotent: registering the same (id, ip) pair again is a no-op. Returns
// true when a new entry was created.
func (r *DeviceRegistry) Register(id DeviceID, ip net.IP) (bool, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return false, fmt.Errorf("device %s: only IPv4 addresses are supported, got %v", id, ip)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if other, exists := r.byIP[ip4.String()]; exists && other.id != id {
		return false, fmt.Errorf("IP %s is already registered to device %s", ip4, other.id)
	}

	if entry, exists := r.byID[id]; exists {
		if entry.ip.Equal(ip4) {
			return false, nil
		}
		// Address changed: the old cached state belongs to the old
		// address, so the entry starts over.
		entry.mu.Lock()
		entry.removed = true
		entry.mu.Unlock()
		delete(r.byIP, entry.ip.String())
	}

	entry := &deviceEntry{id: id, ip: ip4}
	r.byID[id] = entry
	r.byIP[ip4.String()] = entry
	return true, nil
}

// Unregister removes a unit and its cached state. The entry is flagged so
// any in-flight poll or broadcast referencing it stops updating it.
func (r *DeviceRegistry) Unregister(id DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.byID[id]
	if !exists {
		return false
	}
	entry.mu.Lock()
	entry.removed = true
	entry.mu.Unlock()
	delete(r.byID, id)
	delete(r.byIP, entry.ip.String())
	return true
}

// resolveIP looks up the unit a datagram's source address belongs to.
// Unknown sources return nil; broadcast traffic from unrelated devices on
// the subnet is expected and not an error.
func (r *DeviceRegistry) resolveIP(ip net.IP) *deviceEntry {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byIP[ip4.String()]
}

// get looks up a unit by device ID.
func (r *DeviceRegistry) get(id DeviceID) *deviceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// entries returns all registered entries in device-ID order.
func (r *DeviceRegistry) entries() []*deviceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*deviceEntry, 0, len(r.byID))
	for _, entry := range r.byID {
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b *deviceEntry) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return result
}

// Len returns the number of registered units.
func (r *DeviceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
