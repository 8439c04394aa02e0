// Package api is the HTTP surface of vitalsynth.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/pipeline"
)

// Version is reported by the root endpoint.
var Version = "dev"

// Config holds the HTTP server configuration
type Config struct {
	Host string
	Port int
	// Token protects the delete endpoints when set.
	Token      string
	AcceptGzip bool
}

// Feeds are the optional live-stream handlers mounted at /ws and /events.
type Feeds struct {
	WebSocket http.Handler
	SSE       http.Handler
}

// Server is the HTTP API server
type Server struct {
	config     Config
	service    *pipeline.Service
	feeds      Feeds
	logger     *zap.Logger
	idempotent *IdempotencyStore
	server     *http.Server
	started    time.Time
	mu         sync.RWMutex
	stats      Stats
}

// Stats holds server statistics
type Stats struct {
	TotalReceived    int `json:"total_received"`
	TotalDuplicates  int `json:"total_duplicates"`
	TotalPredictions int `json:"total_predictions"`
	TotalErrors      int `json:"total_errors"`
}

// NewServer creates a new API server over service.
func NewServer(config Config, service *pipeline.Service, feeds Feeds, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:     config,
		service:    service,
		feeds:      feeds,
		logger:     logger,
		idempotent: NewIdempotencyStore(DefaultIdempotencyTTL),
		started:    time.Now(),
	}
}

// Router builds the route table with recovery and request logging.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverPanics, s.logRequests)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Not a subrouter: a subrouter method mismatch would 404 instead of 405.
	r.HandleFunc("/api/sensor-data", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/sensor-data", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/sensor-data/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/sensor-data/{id}", s.requireToken(s.handleDeleteReading)).Methods(http.MethodDelete)
	r.HandleFunc("/api/glucose/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/api/health/{deviceId}", s.handleDeviceHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", s.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{deviceId}", s.requireToken(s.handleDeleteDevice)).Methods(http.MethodDelete)

	if s.feeds.WebSocket != nil {
		r.Handle("/ws", s.feeds.WebSocket)
	}
	if s.feeds.SSE != nil {
		r.Handle("/events", s.feeds.SSE).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /ws and /events are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	// Open streams would otherwise hold Shutdown until its timeout.
	for _, h := range []http.Handler{s.feeds.WebSocket, s.feeds.SSE} {
		if c, ok := h.(interface{ Close() }); ok {
			s.server.RegisterOnShutdown(c.Close)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Address returns the server base URL
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// GetStats returns current server statistics
func (s *Server) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Server) count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}
