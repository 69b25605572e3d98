// Package server implements hivecore's REST and WebSocket surface
// (spec.md §6): a gorilla/mux router for /api/... and /health/..., and a
// Hub driving the /ws Hello/event-envelope/ping-pong/subscribe protocol.
// Grounded on the teacher's internal/server/server.go routing shape and
// internal/server/hub.go's register/unregister/broadcast channel loop.
package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hivecore/hivecore/internal/events"
)

const (
	// keepaliveInterval matches spec.md §6's 30s WebSocket keepalive.
	keepaliveInterval = 30 * time.Second
	clientSendBuffer  = 256
	protocolVersion   = "1.0"
)

// Hello is the first message a client receives after upgrade.
type Hello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ServerID        string `json:"server_id"`
}

// envelope is the wire shape for every subsequent server->client message.
type envelope struct {
	Kind      events.Kind `json:"kind"`
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// controlFrame is a client->server control message: ping, ack, or
// subscribe, exactly the three spec.md §6 names.
type controlFrame struct {
	Action  string        `json:"action"`
	AlertID string        `json:"alert_id,omitempty"`
	Kinds   []events.Kind `json:"kinds,omitempty"`
}

// Client is one connected WebSocket browser/agent session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.Mutex
	filters map[events.Kind]bool // nil means "subscribed to everything"
}

func (c *Client) wants(kind events.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filters == nil {
		return true
	}
	return c.filters[kind]
}

func (c *Client) setFilters(kinds []events.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(kinds) == 0 {
		c.filters = nil
		return
	}
	c.filters = make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		c.filters[k] = true
	}
}

// Hub fans out Event Bus envelopes to every connected WebSocket client,
// honoring each client's subscribe filter.
type Hub struct {
	serverID string

	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
}

// NewHub creates an empty Hub.
func NewHub(serverID string) *Hub {
	return &Hub{
		serverID:   serverID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub's register/unregister loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Broadcast fans out one bus event to every subscribed client, never
// blocking on a slow client (matching the teacher's drop-on-full-buffer
// hub loop; the Event Bus itself already handles the Lagged(n) marker
// per-subscriber upstream of this hub).
func (h *Hub) Broadcast(ev events.Event) {
	env := envelope{Kind: ev.Kind, ID: ev.ID, Timestamp: ev.Timestamp, Payload: ev.Payload}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] failed to marshal event %s: %v", ev.Kind, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.Kind) {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Printf("[WS] client send buffer full, dropping %s", ev.Kind)
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Action {
		case "ping":
			c.sendJSON(map[string]string{"type": "pong"})
		case "subscribe":
			c.setFilters(frame.Kinds)
		case "ack":
			// Acknowledgement is fire-and-forget: the server does not
			// track per-client delivery state beyond the event bus's
			// own Lagged(n) bookkeeping.
		}
	}
}

func (c *Client) writePump(stop <-chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
