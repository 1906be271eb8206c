package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rxaudit/internal/audit"
)

// Pinger lets the health check reach a backend without holding the full
// store client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the pipeline over HTTP: one case per POST /audit call.
type Server struct {
	pipeline   *audit.Pipeline
	relational Pinger
	graph      Pinger
	logger     *zap.Logger
	http       *http.Server
}

func New(addr string, pipeline *audit.Pipeline, relational, graph Pinger, logger *zap.Logger) *Server {
	s := &Server{
		pipeline:   pipeline,
		relational: relational,
		graph:      graph,
		logger:     logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/audit", s.handleAudit).Methods("POST")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("audit server starting", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var auditCase audit.Case
	if err := json.NewDecoder(r.Body).Decode(&auditCase); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if auditCase.CaseID == "" {
		auditCase.CaseID = "http_" + time.Now().UTC().Format("20060102T150405")
	}

	result := s.pipeline.RunCase(r.Context(), &auditCase)
	writeJSONResponse(w, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.relational.Ping(ctx); err != nil {
		http.Error(w, "relational store unreachable", http.StatusServiceUnavailable)
		return
	}
	if err := s.graph.Ping(ctx); err != nil {
		http.Error(w, "graph store unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, map[string]string{"status": "healthy"})
}

func writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
