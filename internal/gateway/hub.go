// Package gateway exposes the engine over WebSocket and REST: signal
// lifecycle events are fanned out to connected clients, and a small JSON
// API serves signal history, performance reports, and automation control.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"signal-enginev1/internal/model"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and fans signal events out to them.
// It implements the scheduler's event sink, so every emission and
// resolution reaches the UI without polling.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	history    *History        // recent signal envelopes, replayed on connect
	lastStatus json.RawMessage // most recent status envelope
	seq        int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		history: NewHistory(64),
	}
}

// PublishSignal broadcasts a signal event to all connected clients.
// Event kind is "signal.emitted" for pending signals and "signal.resolved"
// once a result is set.
func (h *Hub) PublishSignal(ctx context.Context, sig *model.Signal) {
	kind := "signal.emitted"
	if sig.Resolved() {
		kind = "signal.resolved"
	}
	h.broadcast(kind, sig)
}

func (h *Hub) broadcast(kind string, payload interface{}) {
	h.mu.Lock()
	h.seq++
	envelope, err := json.Marshal(map[string]interface{}{
		"type": kind,
		"seq":  h.seq,
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"data": payload,
	})
	if err != nil {
		h.mu.Unlock()
		log.Printf("[gateway] envelope marshal failed: %v", err)
		return
	}
	if kind == "status" {
		h.lastStatus = envelope
	} else {
		h.history.Push(envelope)
	}
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Slow client: drop rather than block the broadcaster.
		}
	}
	h.mu.Unlock()
}

// StartStatusBroadcast pushes an engine status snapshot to all clients on
// a fixed interval. status is called once per tick.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration, status func() interface{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcast("status", status())
		}
	}
}

// HandleWSRequest registers an upgraded connection as a hub client.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub. The send channel is closed
// under the hub lock so replay holding the read lock never races the close.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// RecentEvents returns up to n recently broadcast signal envelopes,
// oldest first.
func (h *Hub) RecentEvents(n int) []json.RawMessage {
	raw := h.history.Recent(n)
	out := make([]json.RawMessage, len(raw))
	for i, e := range raw {
		out[i] = json.RawMessage(e)
	}
	return out
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
