// Package server exposes the signal stream over websocket plus a few JSON
// snapshot endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"watcher/internal/bus"
	"watcher/internal/metrics"
	"watcher/internal/model"
)

const shutdownTimeout = 5 * time.Second

// HistoryProvider supplies the snapshots sent to new subscribers.
type HistoryProvider interface {
	Stats() model.Stats
	RecentSignals() []model.Signal
	Records() []model.SignalRecord
}

// Server is the subscriber-facing HTTP server.
type Server struct {
	logger   *slog.Logger
	addr     string
	bus      *bus.Bus
	history  HistoryProvider
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// New creates a Server listening on addr.
func New(logger *slog.Logger, addr string, b *bus.Bus, history HistoryProvider, m *metrics.Metrics) *Server {
	return &Server{
		logger:  logger,
		addr:    addr,
		bus:     b,
		history: history,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/signals", s.handleSignals)
		r.Get("/records", s.handleRecords)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Run serves until ctx is done, then shuts down gracefully. Open websocket
// streams observe ctx through their request context.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server: shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"subscribers": s.bus.Subscribers(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.history.Stats())
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.history.RecentSignals())
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records := s.history.Records()
	if records == nil {
		records = []model.SignalRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Server: failed to encode response", "error", err)
	}
}
