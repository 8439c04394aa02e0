package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards are served from other origins
	},
}

// WebSocketHub broadcasts readings to WebSocket clients. It is mounted as an http.Handler.
type WebSocketHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex // guards clients and serializes writes
	logger  *zap.Logger
}

// NewWebSocketHub creates an empty hub.
func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// ServeHTTP upgrades the connection and holds it until the client goes away.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", count))

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		count := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Info("websocket client disconnected", zap.Int("clients", count))
	}()

	// Incoming messages are ignored; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Broadcast sends a reading to all connected clients
func (h *WebSocketHub) Broadcast(reading models.Reading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			// The connection handler removes the client.
			h.logger.Debug("failed to send to client", zap.Error(err))
		}
	}
	return nil
}

// BroadcastFromChannel broadcasts every reading from readings until ctx ends or it closes.
func (h *WebSocketHub) BroadcastFromChannel(ctx context.Context, readings <-chan models.Reading) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reading, ok := <-readings:
			if !ok {
				return nil
			}
			if err := h.Broadcast(reading); err != nil {
				h.logger.Warn("broadcast error", zap.Error(err))
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}
