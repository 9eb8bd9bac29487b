package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Supervisor is the subset of scheduler.Supervisor the admin surface
// drives: manual resync and the pause/resume toggle.
type Supervisor interface {
	TriggerSync(anchor string)
	Pause()
	Resume()
}

// Server exposes health, metrics, and the pause/resume and per-anchor
// resync controls carried over from the original command-file
// processing.
type Server struct {
	router     chi.Router
	supervisor Supervisor
	logger     zerolog.Logger
}

// New builds the router. It does not start listening; call
// http.Serve or (*http.Server).ListenAndServe with it.
func New(supervisor Supervisor) *Server {
	s := &Server{
		supervisor: supervisor,
		logger:     log.WithComponent("adminhttp"),
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/sync", s.handleSync)
	r.Post("/sync/{anchor}", s.handleSync)
	r.Post("/pause", s.handlePause)
	r.Post("/resume", s.handleResume)
	s.router = r

	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	anchor := chi.URLParam(r, "anchor")
	if anchor == "" {
		anchor = r.URL.Query().Get("anchor")
	}
	s.supervisor.TriggerSync(anchor)
	s.logger.Info().Str("anchor", anchor).Msg("manual sync triggered")
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.supervisor.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.supervisor.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
