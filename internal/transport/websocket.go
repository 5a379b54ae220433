// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"featex/internal/log"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

const (
	broadcastQueue = 256
	writeTimeout   = 2 * time.Second
)

// WebSocketTransport broadcasts payloads as JSON text messages to every
// client connected on /ws. Payloads that do not fit the broadcast queue are
// dropped.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	mux       *http.ServeMux
	entry     *logrus.Entry

	closeMu sync.RWMutex
	closed  bool
	done    sync.WaitGroup
	dropped atomic.Uint64
}

// NewWebSocketTransport creates a new WebSocketTransport and starts its
// broadcast goroutine. The HTTP listener is started by Start; callers that
// already run a server mount Handler instead.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Feature frames are public.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		mux:       http.NewServeMux(),
		entry:     log.WithComponent("websocket"),
	}
	wst.mux.HandleFunc("/ws", wst.handleWebSocket)

	wst.done.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler serves the /ws endpoint.
func (wst *WebSocketTransport) Handler() http.Handler { return wst.mux }

// Start listens on the configured address in a goroutine.
func (wst *WebSocketTransport) Start() {
	wst.server = &http.Server{
		Addr:              wst.addr,
		Handler:           wst.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	server := wst.server
	go func() {
		wst.entry.Infof("Starting WebSocket server on %s", wst.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.entry.Errorf("Server error: %v", err)
		}
	}()
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns the number of payloads discarded because the queue was full.
func (wst *WebSocketTransport) Dropped() uint64 { return wst.dropped.Load() }

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.entry.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.entry.Debugf("Client connected, total: %d", total)

	// Clients never send; a read error means the peer went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.clientsMu.Lock()
		if wst.clients[conn] {
			delete(wst.clients, conn)
			conn.Close()
		}
		total := len(wst.clients)
		wst.clientsMu.Unlock()
		wst.entry.Debugf("Client disconnected, total: %d", total)
	}()
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.done.Done()
	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteJSON(data); err != nil {
				wst.entry.Debugf("Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. It never blocks.
func (wst *WebSocketTransport) Send(data any) error {
	wst.closeMu.RLock()
	defer wst.closeMu.RUnlock()
	if wst.closed {
		return ErrClosed
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Close drains the broadcast queue, disconnects every client and shuts the
// server down. It is idempotent.
func (wst *WebSocketTransport) Close() error {
	wst.closeMu.Lock()
	if wst.closed {
		wst.closeMu.Unlock()
		return nil
	}
	wst.closed = true
	close(wst.broadcast)
	wst.closeMu.Unlock()
	wst.done.Wait()

	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	clear(wst.clients)
	wst.clientsMu.Unlock()

	if n := wst.Dropped(); n > 0 {
		wst.entry.Warnf("Dropped %d payloads", n)
	}
	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
