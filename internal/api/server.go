// Package api serves the read-only status surface: workflow listings,
// per-run state and Prometheus exposition. It reads persisted state
// from disk, so it reports on finished runs as well as the live one.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/state"
)

// Server exposes pipeline state over HTTP.
type Server struct {
	log      *logging.Logger
	stateDir string
	met      *metrics.Metrics
	router   chi.Router
}

// New builds the server and its routes.
func New(log *logging.Logger, stateDir string, met *metrics.Metrics, allowedOrigins []string) *Server {
	s := &Server{
		log:      log.With("component", "api"),
		stateDir: stateDir,
		met:      met,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/workflows", s.handleListWorkflows)
		r.Get("/workflows/{id}", s.handleGetWorkflow)
		r.Get("/workflows/{id}/checkpoints", s.handleGetCheckpoints)
	})
	if met != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(met.Registry(), promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	ids, err := state.ListWorkflows(s.stateDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	summaries := make([]state.Summary, 0, len(ids))
	for _, id := range ids {
		ps, err := state.LoadState(s.stateDir, id)
		if err != nil || ps == nil {
			s.log.Warn("skipping unreadable workflow state", "workflow_id", id)
			continue
		}
		summaries = append(summaries, state.SummaryOf(ps))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"workflows": summaries,
		"count":     len(summaries),
	})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ps, err := state.LoadState(s.stateDir, id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ps == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"error": "workflow not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"workflow": ps,
		"summary":  state.SummaryOf(ps),
	})
}

func (s *Server) handleGetCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cps, err := state.LoadCheckpoints(s.stateDir, id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"checkpoints": cps,
		"count":       len(cps),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encoding response", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("request failed", "error", err.Error())
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}
