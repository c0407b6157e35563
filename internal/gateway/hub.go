package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// client wraps a websocket connection. Gorilla connections allow one concurrent
// writer, so every write goes through send.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks the websocket clients waiting on each execution id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

func (h *Hub) register(executionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[executionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[executionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(executionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[executionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, executionID)
	}
}

// Waiting returns the number of clients registered for executionID.
func (h *Hub) Waiting(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[executionID])
}

// Deliver writes payload to every client waiting on executionID and returns how many
// received it. Clients whose write fails are closed and dropped.
func (h *Hub) Deliver(executionID string, payload []byte) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[executionID]))
	for c := range h.clients[executionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.send(payload); err != nil {
			logger().Warn("failed to write to websocket", "execution_id", executionID, "error", err)
			h.unregister(executionID, c)
			_ = c.conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}
