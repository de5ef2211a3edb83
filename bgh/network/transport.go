package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// UDPTransport owns the two sockets the protocol needs: a wildcard-bound
// receive socket that collects status broadcasts from every unit on the
// subnet, and a send socket used for unicast command frames. Sends carry no
// delivery guarantee; a unit answers by broadcasting, never by replying to
// the sender.
type UDPTransport struct {
	recvConn       *net.UDPConn
	sendConn       *net.UDPConn
	sendPort       int
	recvPort       int
	localIPs       []net.IP // local interface IPs, for self-packet filtering
	mu             sync.RWMutex
	networkMonitor *networkMonitor
	closed         bool
}

// MonitorConfig controls the optional network-interface monitor, which
// refreshes the local-IP list used for self-packet filtering when
// interfaces come and go.
type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration // zero means the 10s default
}

// CreateUDPTransport binds the broadcast receive socket to recvPort on all
// IPv4 interfaces and opens the send socket. Binding the receive socket is
// the only fatal startup step: without it the coordinator cannot function.
func CreateUDPTransport(ctx context.Context, recvPort, sendPort int, monitor MonitorConfig) (*UDPTransport, error) {
	recvConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: recvPort})
	if err != nil {
		return nil, fmt.Errorf("failed to bind broadcast receive socket on port %d: %w", recvPort, err)
	}

	sendConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		_ = recvConn.Close()
		return nil, fmt.Errorf("failed to open send socket: %w", err)
	}

	localIPs, err := GetLocalIPv4s()
	if err != nil {
		slog.Warn("could not determine local IPs for self-message filtering", "err", err)
		localIPs = []net.IP{}
	}

	t := &UDPTransport{
		recvConn: recvConn,
		sendConn: sendConn,
		sendPort: sendPort,
		recvPort: recvPort,
		localIPs: localIPs,
	}

	if monitor.Enabled {
		t.startNetworkMonitor(ctx, monitor.Interval)
	}

	return t, nil
}

// SendTo delivers a command frame to the unit at dstIP, fire-and-forget.
// Failure is surfaced per call and never affects the receive path.
func (t *UDPTransport) SendTo(dstIP net.IP, data []byte) error {
	_, err := t.sendConn.WriteToUDP(data, &net.UDPAddr{IP: dstIP, Port: t.sendPort})
	if err != nil {
		return fmt.Errorf("failed to send %d bytes to %s:%d: %w", len(data), dstIP, t.sendPort, err)
	}
	return nil
}

// bufferPool holds receive buffers; broadcasts arrive continuously so the
// hot path avoids per-datagram allocation of the full MTU.
var bufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 1500) },
}

// Receive waits for the next inbound datagram and returns its payload and
// source address. Datagrams we broadcast ourselves are skipped. The call
// unblocks when ctx is cancelled or the transport is closed.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.recvConn.SetReadDeadline(deadline)
	} else {
		_ = t.recvConn.SetReadDeadline(time.Time{})
	}

	for {
		type result struct {
			data []byte
			addr *net.UDPAddr
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			buf := bufferPool.Get().([]byte)
			defer bufferPool.Put(buf)
			n, addr, err := t.recvConn.ReadFromUDP(buf)
			if err != nil {
				ch <- result{nil, nil, err}
				return
			}
			if t.isSelfPacket(addr) {
				ch <- result{nil, nil, nil}
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			ch <- result{data, addr, nil}
		}()

		select {
		case <-ctx.Done():
			_ = t.recvConn.SetReadDeadline(time.Now())
			<-ch
			return nil, nil, ctx.Err()
		case res := <-ch:
			if res.err == nil && res.data == nil {
				continue // own broadcast, wait for the next datagram
			}
			return res.data, res.addr, res.err
		}
	}
}

// isSelfPacket reports whether the datagram originated from one of our own
// local addresses on the receive port.
func (t *UDPTransport) isSelfPacket(src *net.UDPAddr) bool {
	if src == nil || src.Port != t.recvPort {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, localIP := range t.localIPs {
		if src.IP.Equal(localIP) {
			return true
		}
	}
	return false
}

// IsLocalIP reports whether ip is one of the machine's own addresses.
func (t *UDPTransport) IsLocalIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, localIP := range t.localIPs {
		if ip.Equal(localIP) {
			return true
		}
	}
	return false
}

// Close releases both sockets. A blocked Receive returns with an error.
// The transport cannot be reused after Close; listening again requires a
// fresh bind.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	monitor := t.networkMonitor
	t.networkMonitor = nil
	t.mu.Unlock()

	// Stop the monitor outside the lock; its loop takes the lock to
	// refresh the local IP list.
	if monitor != nil {
		monitor.stop()
	}

	sendErr := t.sendConn.Close()
	recvErr := t.recvConn.Close()
	if recvErr != nil {
		return recvErr
	}
	return sendErr
}
