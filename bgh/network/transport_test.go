package network

import (
	"context"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getFreePort returns an available UDP port by letting the OS assign one.
func getFreePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func newTestTransport(t *testing.T, ctx context.Context) (*UDPTransport, int, int) {
	t.Helper()
	recvPort := getFreePort(t)
	sendPort := getFreePort(t)
	tr, err := CreateUDPTransport(ctx, recvPort, sendPort, MonitorConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, recvPort, sendPort
}

func TestUDPTransport_SendTo(t *testing.T) {
	ctx := context.Background()
	tr, _, sendPort := newTestTransport(t, ctx)

	// Stand in for a unit: listen on the command port.
	unit, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sendPort})
	require.NoError(t, err)
	defer unit.Close()

	payload := []byte{0x00, 0x01, 0x02}
	require.NoError(t, tr.SendTo(net.IPv4(127, 0, 0, 1), payload))

	require.NoError(t, unit.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := unit.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestUDPTransport_Receive(t *testing.T) {
	ctx := context.Background()
	tr, recvPort, _ := newTestTransport(t, ctx)

	payload := []byte("status frame")
	sender, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: recvPort})
	require.NoError(t, err)

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, addr, err := tr.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.NotNil(t, addr)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
}

func TestUDPTransport_ReceiveBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, recvPort, _ := newTestTransport(t, ctx)

	payload := []byte("broadcast test")

	sendErrCh := make(chan error, 1)
	go func() {
		defer close(sendErrCh)
		senderConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
		if err != nil {
			sendErrCh <- err
			return
		}
		defer senderConn.Close()

		// Enable broadcast on the socket via syscall
		rc, err := senderConn.SyscallConn()
		if err != nil {
			sendErrCh <- err
			return
		}
		_ = rc.Control(func(fd uintptr) {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
		})

		_, err = senderConn.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4bcast, Port: recvPort})
		sendErrCh <- err
	}()

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	data, addr, err := tr.Receive(recvCtx)
	assert.NoError(t, <-sendErrCh)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NotNil(t, addr)
}

func TestUDPTransport_ReceiveCancel(t *testing.T) {
	tr, _, _ := newTestTransport(t, context.Background())

	recvCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := tr.Receive(recvCtx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after context cancellation")
	}
}

func TestUDPTransport_CloseUnblocksReceive(t *testing.T) {
	tr, _, _ := newTestTransport(t, context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := tr.Receive(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}

func TestUDPTransport_CloseIdempotent(t *testing.T) {
	tr, _, _ := newTestTransport(t, context.Background())
	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestUDPTransport_BindFailure(t *testing.T) {
	recvPort := getFreePort(t)
	occupant, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: recvPort})
	require.NoError(t, err)
	defer occupant.Close()

	_, err = CreateUDPTransport(context.Background(), recvPort, getFreePort(t), MonitorConfig{})
	assert.Error(t, err)
}
