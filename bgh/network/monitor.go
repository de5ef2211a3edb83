package network

import (
	"context"
	"log/slog"
	"net"
	"time"
)

const defaultMonitorInterval = 10 * time.Second

// networkMonitor watches the machine's network interfaces and refreshes the
// transport's local-IP list when they change, so self-packet filtering stays
// correct across Wi-Fi roaming or DHCP renewals.
type networkMonitor struct {
	cancel     context.CancelFunc
	interfaces []net.Interface
	done       chan struct{}
}

func (t *UDPTransport) startNetworkMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	m := &networkMonitor{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if ifaces, err := net.Interfaces(); err == nil {
		m.interfaces = ifaces
	} else {
		slog.Warn("failed to read network interfaces", "err", err)
	}

	t.networkMonitor = m
	go t.networkMonitorLoop(monitorCtx, m, interval)
	slog.Info("network interface monitor started", "interval", interval)
}

func (m *networkMonitor) stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (t *UDPTransport) networkMonitorLoop(ctx context.Context, m *networkMonitor, interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("network interface monitor stopped")
			return
		case <-ticker.C:
			t.checkNetworkChanges(m)
		}
	}
}

func (t *UDPTransport) checkNetworkChanges(m *networkMonitor) {
	current, err := net.Interfaces()
	if err != nil {
		slog.Warn("failed to read network interfaces", "err", err)
		return
	}

	if !interfacesChanged(m.interfaces, current) {
		return
	}
	slog.Info("network interface change detected")
	m.interfaces = current

	newLocalIPs, err := GetLocalIPv4s()
	if err != nil {
		// keep the existing list rather than filtering against nothing
		slog.Warn("failed to refresh local IP addresses", "err", err)
		return
	}
	t.mu.Lock()
	t.localIPs = newLocalIPs
	t.mu.Unlock()
	slog.Debug("local IP addresses refreshed", "count", len(newLocalIPs))
}

// interfacesChanged compares interface sets by name and flags.
func interfacesChanged(previous, current []net.Interface) bool {
	if len(previous) != len(current) {
		return true
	}
	prevMap := make(map[string]net.Flags, len(previous))
	for _, iface := range previous {
		prevMap[iface.Name] = iface.Flags
	}
	for _, iface := range current {
		if prevFlags, exists := prevMap[iface.Name]; !exists || prevFlags != iface.Flags {
			return true
		}
	}
	return false
}
