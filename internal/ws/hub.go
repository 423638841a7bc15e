package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunEvent is one progress update of a measurement run, pushed to
// connected GUI clients.
type RunEvent struct {
	Stage   string    `json:"stage"`
	Sample  string    `json:"sample,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Run event stages.
const (
	StageStarted    = "started"
	StageConnecting = "connecting"
	StageMeasuring  = "measuring"
	StageValidation = "validation"
	StagePersisted  = "persisted"
	StageFailed     = "failed"
)

// Hub broadcasts run events to every connected client.
type Hub struct {
	mu           sync.RWMutex
	connections  map[*Connection]struct{}
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds the event hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		connections:  make(map[*Connection]struct{}),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers a new connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = struct{}{}
}

// Remove drops a connection.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish broadcasts one event. Slow consumers have the event dropped
// rather than stalling the measurement run.
func (h *Hub) Publish(event RunEvent) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to encode run event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.connections {
		conn.Send(data)
	}
}

// Start begins the ping loop keeping connections alive.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			for conn := range h.connections {
				_ = conn.Ping()
			}
			h.mu.RUnlock()
		}
	}
}
