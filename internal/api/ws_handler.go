package api

import (
	"net/http"

	ws "github.com/daishi-37/yahei-fax-ocr/internal/websocket"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketHandler handles the /api/v1/emails/ws endpoint for live cycle results.
// Authentication is done by the middleware in front of it, which also accepts ?token=
// because browsers cannot set headers on WebSocket connections.
type WebSocketHandler struct {
	hub    *ws.Hub
	logger zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server is expected to run behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the Hub.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		return
	}

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket connection established")
	go h.readLoop(client)
}

// readLoop reads until the connection is closed, then unregisters the client.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(client)
}
