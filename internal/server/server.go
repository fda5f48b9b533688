// Package server exposes an optional HTTP listener with the agent's health,
// the last cycle and prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/hostpanel/internal/scheduler"
	"github.com/HerbHall/hostpanel/internal/source"
	"github.com/HerbHall/hostpanel/internal/version"
)

// StatusProvider reports scheduler progress.
type StatusProvider interface {
	State() scheduler.State
	LastCycle() (scheduler.Cycle, bool)
}

// Server is the hostpanel HTTP listener.
type Server struct {
	httpServer *http.Server
	status     StatusProvider
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a new Server instance. gatherer backs /metrics.
func New(addr string, status StatusProvider, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		status: status,
		logger: logger,
		mux:    mux,
	}

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/cycles/last", s.handleLastCycle)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

type cycleResponse struct {
	ID         string                   `json:"id"`
	StartedAt  time.Time                `json:"started_at"`
	DurationMs int64                    `json:"duration_ms"`
	Outcome    string                   `json:"outcome"`
	Frame      string                   `json:"frame,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Fields     map[string]source.Status `json:"fields"`
	Attempts   int                      `json:"attempts"`
}

func newCycleResponse(c scheduler.Cycle) cycleResponse {
	resp := cycleResponse{
		ID:         c.ID,
		StartedAt:  c.StartedAt,
		DurationMs: c.Duration.Milliseconds(),
		Outcome:    c.Outcome(),
		Frame:      c.Frame,
		Fields:     c.Statuses,
		Attempts:   len(c.Attempts),
	}
	if c.Err != nil {
		resp.Error = c.Err.Error()
	}
	return resp
}

// handleHealth reports "starting" until the first cycle, then "ok" or
// "degraded" depending on the last cycle.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service": "hostpanel",
		"version": version.Map(),
		"state":   s.status.State().String(),
		"status":  "starting",
	}
	if c, ok := s.status.LastCycle(); ok {
		body["status"] = "ok"
		if !c.OK() {
			body["status"] = "degraded"
		}
		body["last_cycle"] = newCycleResponse(c)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Hostpanel-Version", version.Short())
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	c, ok := s.status.LastCycle()
	if !ok {
		NotFound(w, "no cycle has completed yet", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newCycleResponse(c))
}
