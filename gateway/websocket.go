package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corda/ledgergate/flowbridge"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second

	// Per-subscriber event buffer. A subscriber that falls this far behind
	// starts losing events; the stream is observational, not a ledger.
	wsEventBuffer = 16
)

// Hub fans terminal flow events out to websocket subscribers
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan flowbridge.Event]struct{}
	closed  bool
}

// NewHub creates a flow update hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "flowupdates"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[chan flowbridge.Event]struct{}),
	}
}

// Broadcast delivers an event to every subscriber. Slow subscribers drop
// events rather than stall the flow watcher.
func (h *Hub) Broadcast(event flowbridge.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client <- event:
		default:
			h.logger.Warn("dropping flow event for slow subscriber",
				"invocation_id", event.InvocationID)
		}
	}
}

// Subscribers reports the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches all subscribers
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		close(client)
	}
	h.clients = make(map[chan flowbridge.Event]struct{})
}

func (h *Hub) register() (chan flowbridge.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	client := make(chan flowbridge.Event, wsEventBuffer)
	h.clients[client] = struct{}{}
	return client, true
}

func (h *Hub) unregister(client chan flowbridge.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client)
	}
}

// handleSubscribe upgrades the connection and streams terminal flow events
// until the subscriber disconnects.
func (h *Hub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client, ok := h.register()
	if !ok {
		return
	}
	defer h.unregister(client)

	// Reader goroutine only watches for the subscriber hanging up
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-client:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
