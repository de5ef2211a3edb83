package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketTransport abstracts the network layer of the WebSocket server so
// the message handlers can be tested without sockets.
type WebSocketTransport interface {
	// Start runs the server until Stop; Ready (if set in options) is
	// closed once the listener is bound.
	Start(options StartOptions) error

	// Stop shuts the server down.
	Stop() error

	// SetMessageHandler sets the handler called for each inbound client
	// message. connID identifies the client connection.
	SetMessageHandler(handler func(connID string, message []byte) error)

	// SetConnectHandler sets the handler called when a client connects.
	SetConnectHandler(handler func(connID string) error)

	// SetDisconnectHandler sets the handler called when a client
	// disconnects.
	SetDisconnectHandler(handler func(connID string))

	// SendMessage sends a message to one client.
	SendMessage(connID string, message []byte) error

	// BroadcastMessage sends a message to every connected client.
	BroadcastMessage(message []byte) error
}

// StartOptions configures transport startup.
type StartOptions struct {
	CertFile string        // TLS certificate path, empty for plain HTTP
	KeyFile  string        // TLS key path
	Ready    chan struct{} // closed once the listener is bound, may be nil
}

// clientConnection wraps a WebSocket connection with a mutex for safe
// concurrent writes.
type clientConnection struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

// DefaultWebSocketTransport is the gorilla/websocket-backed implementation.
type DefaultWebSocketTransport struct {
	ctx               context.Context
	cancel            context.CancelFunc
	server            *http.Server
	upgrader          websocket.Upgrader
	clients           map[string]*clientConnection
	clientsMutex      sync.RWMutex
	messageHandler    func(connID string, message []byte) error
	connectHandler    func(connID string) error
	disconnectHandler func(connID string)
}

func NewDefaultWebSocketTransport(ctx context.Context, addr string) *DefaultWebSocketTransport {
	transportCtx, cancel := context.WithCancel(ctx)

	transport := &DefaultWebSocketTransport{
		ctx:    transportCtx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The API serves the local host platform only.
				return true
			},
		},
		clients: make(map[string]*clientConnection),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", transport.handleWebSocket)

	transport.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return transport
}

// Start binds the listener first so callers can synchronize on Ready, then
// serves until Stop.
func (t *DefaultWebSocketTransport) Start(options StartOptions) error {
	listener, err := net.Listen("tcp", t.server.Addr)
	if err != nil {
		return err
	}
	if options.Ready != nil {
		close(options.Ready)
	}
	slog.Info("WebSocket server starting", "addr", t.server.Addr)

	if options.CertFile != "" && options.KeyFile != "" {
		slog.Info("Using TLS with certificate", "certFile", options.CertFile)
		return t.server.ServeTLS(listener, options.CertFile, options.KeyFile)
	}

	return t.server.Serve(listener)
}

func (t *DefaultWebSocketTransport) Stop() error {
	slog.Info("Stopping WebSocket server", "addr", t.server.Addr)
	t.cancel()
	err := t.server.Shutdown(context.Background())
	if err != nil {
		slog.Info("Error shutting down WebSocket server", "err", err)
	}
	return err
}

func (t *DefaultWebSocketTransport) SetMessageHandler(handler func(connID string, message []byte) error) {
	t.messageHandler = handler
}

func (t *DefaultWebSocketTransport) SetConnectHandler(handler func(connID string) error) {
	t.connectHandler = handler
}

func (t *DefaultWebSocketTransport) SetDisconnectHandler(handler func(connID string)) {
	t.disconnectHandler = handler
}

// isConnectionClosedError checks if the error indicates a closed connection
func isConnectionClosedError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) ||
		strings.Contains(err.Error(), "close sent") ||
		strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// removeClient removes a client and fires the disconnect handler. Returns
// false when the client was already removed.
func (t *DefaultWebSocketTransport) removeClient(connID string) bool {
	t.clientsMutex.Lock()
	_, exists := t.clients[connID]
	if exists {
		delete(t.clients, connID)
	}
	t.clientsMutex.Unlock()

	if !exists {
		return false
	}

	// Disconnect handler runs outside the lock.
	go func() {
		select {
		case <-t.ctx.Done():
		default:
			if t.disconnectHandler != nil {
				t.disconnectHandler(connID)
			}
		}
	}()

	return true
}

func (t *DefaultWebSocketTransport) SendMessage(connID string, message []byte) error {
	t.clientsMutex.RLock()
	client, exists := t.clients[connID]
	t.clientsMutex.RUnlock()

	if !exists {
		return fmt.Errorf("client with ID %s not found", connID)
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	err := client.conn.WriteMessage(websocket.TextMessage, message)
	if err != nil {
		if isConnectionClosedError(err) {
			t.removeClient(connID)
		}
		return fmt.Errorf("failed to send message to client %s: %w", connID, err)
	}

	return nil
}

func (t *DefaultWebSocketTransport) BroadcastMessage(message []byte) error {
	t.clientsMutex.RLock()
	clients := make(map[string]*clientConnection, len(t.clients))
	for connID, client := range t.clients {
		clients[connID] = client
	}
	t.clientsMutex.RUnlock()

	var disconnectedClients []string

	for connID, client := range clients {
		client.mutex.Lock()
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			if isConnectionClosedError(err) {
				disconnectedClients = append(disconnectedClients, connID)
			} else {
				slog.Error("Error broadcasting message to client", "err", err, "connID", connID)
			}
		}
		client.mutex.Unlock()
	}

	for _, connID := range disconnectedClients {
		t.removeClient(connID)
	}

	return nil
}

// handleWebSocket upgrades an HTTP request and pumps client messages into
// the message handler until the connection drops.
func (t *DefaultWebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error upgrading to WebSocket", "err", err, "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	connID := fmt.Sprintf("%p", conn)

	client := &clientConnection{conn: conn}
	t.clientsMutex.Lock()
	t.clients[connID] = client
	t.clientsMutex.Unlock()

	defer t.removeClient(connID)

	if t.connectHandler != nil {
		if err := t.connectHandler(connID); err != nil {
			slog.Error("Error in connect handler", "err", err)
			return
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !isConnectionClosedError(err) {
				slog.Error("Error reading WebSocket message", "err", err, "connID", connID)
			}
			return
		}
		if t.messageHandler != nil {
			if err := t.messageHandler(connID, message); err != nil {
				slog.Error("Error handling client message", "err", err, "connID", connID)
			}
		}
	}
}
