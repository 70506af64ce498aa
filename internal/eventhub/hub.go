// Package eventhub streams dispatch outcome events to WebSocket clients,
// so a dashboard can watch the relay live without polling /api/signals.
package eventhub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one dispatch outcome pushed to subscribers.
type Event struct {
	Symbol    string    `json:"symbol"`
	Kind      string    `json:"kind"`
	Delivered bool      `json:"delivered"`
	TS        time.Time `json:"ts"`
}

// Hub fans out events to subscribed clients. Slow clients drop events
// rather than block the dispatcher.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

// Subscribe registers a new client and returns its receive channel.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		close(ch)
		delete(h.clients, ch)
	}
	h.mu.Unlock()
}

// Publish marshals the event and broadcasts it to every subscriber.
func (h *Hub) Publish(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop the event
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// ServeWS upgrades the request and pumps events to the client until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[eventhub] upgrade error: %v", err)
		return
	}
	log.Printf("[eventhub] client connected: %s", r.RemoteAddr)

	ch := h.Subscribe()
	defer func() {
		h.Unsubscribe(ch)
		conn.Close()
		log.Printf("[eventhub] client disconnected: %s", r.RemoteAddr)
	}()

	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
