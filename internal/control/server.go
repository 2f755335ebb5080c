package control

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/triage/internal/pipeline/orchestrator"
)

// Server provides HTTP endpoints for health monitoring and metrics.
type Server struct {
	orch   *orchestrator.Orchestrator
	server *http.Server
}

// NewServer creates a new health server.
func NewServer(orch *orchestrator.Orchestrator, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		orch: orch,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.orch.LastRun()

	status := "ok"
	if report.State == orchestrator.StateFailed {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"lastRun": report,
	})
}
