package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/batchfetch/internal/infra/storage"
)

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	server  *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, port int) *Server {
	s := &Server{monitor: monitor}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes served by the health server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/batches/latest", s.handleLatest)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
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
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type latestResponse struct {
	*storage.BatchRecord
	Outcomes []*storage.OutcomeRecord `json:"outcomes"`
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	last := s.monitor.Latest()
	if last == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no batch has finished yet"})
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{
		BatchRecord: storage.NewBatchRecord(last),
		Outcomes:    storage.NewOutcomeRecords(last),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
