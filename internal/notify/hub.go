package notify

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

const subscribedAck = "Successfully subscribed to notifications"

// Hub fans typed events out to every connected dashboard client. Delivery is
// fire-and-forget: no persistence, no replay to late subscribers, and a
// connection that fails a write is dropped from the active set.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		logger: slog.Default(),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the WebSocket endpoint dashboard clients connect to.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// ActiveCount returns the number of currently connected clients, for health
// reporting.
func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// inboundMessage is what clients may send us; only "subscribe" is meaningful.
type inboundMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// serve runs for the lifetime of one client connection.
func (h *Hub) serve(ws *websocket.Conn) {
	h.add(ws)
	defer h.remove(ws)

	h.logger.Info("dashboard client connected", "active", h.ActiveCount())

	for {
		var msg inboundMessage
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			h.logger.Info("dashboard client disconnected", "error", err)
			return
		}

		switch msg.Type {
		case "subscribe":
			if err := h.send(ws, Subscribed{Message: subscribedAck}); err != nil {
				h.logger.Warn("failed to ack subscribe", "error", err)
				return
			}
		default:
			h.logger.Debug("ignoring unknown client message", "type", msg.Type)
		}
	}
}

// Broadcast delivers an event to every connected client. Failed writes prune
// the connection; they are never retried. Safe to call concurrently with
// connects and disconnects.
func (h *Hub) Broadcast(e Event) {
	frame, err := encodeEvent(e, time.Now().UTC())
	if err != nil {
		h.logger.Error("encoding event", "type", e.Kind(), "error", err)
		return
	}

	// Snapshot under read lock so broadcast tolerates concurrent removal.
	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for ws := range h.conns {
		targets = append(targets, ws)
	}
	h.mu.RUnlock()

	for _, ws := range targets {
		if err := websocket.Message.Send(ws, string(frame)); err != nil {
			h.logger.Warn("dropping broken client", "type", e.Kind(), "error", err)
			h.remove(ws)
		}
	}
}

func (h *Hub) send(ws *websocket.Conn, e Event) error {
	frame, err := encodeEvent(e, time.Now().UTC())
	if err != nil {
		return err
	}
	return websocket.Message.Send(ws, string(frame))
}

func (h *Hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	_, present := h.conns[ws]
	delete(h.conns, ws)
	h.mu.Unlock()
	if present {
		ws.Close()
	}
}
