// Package hub fans out JSON envelopes to connected websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"plant_monitor/internal/logger"
	"plant_monitor/internal/models"
)

const clientSendBuffer = 16

// Envelope is the wire format pushed to stream subscribers.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client is one connected subscriber. Send is drained by the transport
// layer's write pump.
type Client struct {
	Send chan []byte
}

// Hub maintains the set of active clients and broadcasts envelopes.
// A client that cannot keep up is dropped rather than blocking the
// broadcast path.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	log     *logger.Logger
}

func New(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

// Register adds a subscriber and returns it.
func (h *Hub) Register() *Client {
	c := &Client{Send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("stream_client_registered", "clients", n)
	return c
}

// Unregister removes a subscriber and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("stream_client_unregistered", "clients", n)
}

// BroadcastNotification pushes an alert to every connected client.
func (h *Hub) BroadcastNotification(n models.Notification) {
	h.broadcast(Envelope{Type: "notification", Data: n})
}

// Subscribers returns the current client count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every client. Typically deferred from main with
// a context already canceled.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
}

func (h *Hub) broadcast(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("stream_marshal_failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.Send <- payload:
		default:
			// Slow consumer; drop it so the rest keep receiving.
			delete(h.clients, c)
			close(c.Send)
			h.log.Infow("stream_client_dropped_slow")
		}
	}
}
