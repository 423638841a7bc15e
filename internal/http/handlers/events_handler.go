package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lcrbench/internal/ws"
)

// EventsHandler upgrades GUI clients to the run-event stream.
type EventsHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewEventsHandler returns handler.
func NewEventsHandler(hub *ws.Hub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The bench GUI connects from file:// or localhost origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /api/runs/events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	conn := ws.NewConnection(socket, 10*time.Second, h.logger, func(c *ws.Connection) {
		h.hub.Remove(c)
	})
	h.hub.Add(conn)
	h.logger.Debug("ws client connected", zap.Int("clients", h.hub.ClientCount()))
	conn.Start(r.Context())
}
