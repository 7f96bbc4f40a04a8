package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// Event types sent to dashboard clients.
const (
	EventCycleCompleted = "cycle_completed"
	EventCycleFailed    = "cycle_failed"
)

// Event is the envelope of every message sent to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client wraps a WebSocket connection.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub fans cycle events out to every connected dashboard.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]struct{}
	maxConnections int
	logger         zerolog.Logger
}

// NewHub creates a new Hub with a connection limit.
func NewHub(maxConnections int, logger zerolog.Logger) *Hub {
	if maxConnections <= 0 {
		maxConnections = 10
	}
	return &Hub{
		clients:        make(map[*Client]struct{}),
		maxConnections: maxConnections,
		logger:         logger.With().Str("component", "websocket").Logger(),
	}
}

// Register adds a WebSocket connection.
// If the limit is exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxConnections {
		h.logger.Warn().Int("max", h.maxConnections).Msg("Too many websocket connections, closing new connection")
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// Broadcast sends msg to all clients. Clients that fail to receive it are dropped.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(msg); err != nil {
			h.logger.Debug().Err(err).Msg("Failed to write websocket message, dropping client")
			go h.Unregister(client)
		}
	}
}

// PublishCycle broadcasts a finished cycle.
func (h *Hub) PublishCycle(result *models.CycleResult) {
	eventType := EventCycleCompleted
	if result.Status == models.CycleFailed {
		eventType = EventCycleFailed
	}

	msg, err := json.Marshal(Event{Type: eventType, Data: result})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode cycle event")
		return
	}
	h.Broadcast(msg)
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
