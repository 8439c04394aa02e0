package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/models"
)

const sseClientBuffer = 100

type sseMessage struct {
	id   string
	data []byte
}

// SSEHub streams readings as Server-Sent Events. It is mounted as an http.Handler.
type SSEHub struct {
	clients map[chan sseMessage]bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewSSEHub creates an empty hub.
func NewSSEHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHub{
		clients: make(map[chan sseMessage]bool),
		logger:  logger,
	}
}

func (h *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan sseMessage, sseClientBuffer)
	h.addClient(clientChan)
	defer h.removeClient(clientChan)

	// Send headers now so the client sees the stream open.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("sse client connected", zap.Int("clients", h.ClientCount()))

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "id: %s\nevent: reading\ndata: %s\n\n", msg.id, msg.data)
			flusher.Flush()
		}
	}
}

func (h *SSEHub) addClient(ch chan sseMessage) {
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()
}

func (h *SSEHub) removeClient(ch chan sseMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.clients[ch]; exists {
		delete(h.clients, ch)
		close(ch)
		h.logger.Info("sse client disconnected", zap.Int("clients", len(h.clients)))
	}
}

// Broadcast queues a reading for every client; a client with a full buffer misses it.
func (h *SSEHub) Broadcast(reading models.Reading) error {
	if h.ClientCount() == 0 {
		return nil
	}

	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	msg := sseMessage{id: reading.ID, data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// BroadcastFromChannel broadcasts every reading from readings until ctx ends or it closes.
func (h *SSEHub) BroadcastFromChannel(ctx context.Context, readings <-chan models.Reading) error {
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

// ClientCount returns connected client count
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close ends every stream.
func (h *SSEHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan sseMessage]bool)
}
