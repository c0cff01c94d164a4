// Package controlapi is the local read-only debug/status HTTP surface: a
// liveness probe and a JSON snapshot of connect/playback state, for
// operators and health checks, not a control surface a Connect controller
// drives (that is internal/spirc + internal/dealer). Grounded on
// services/api/cmd/main.go's healthz/readyz handlers and chi router setup.
package controlapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusSnapshot is the subset of connect/playback state worth exposing to
// an operator polling /status — not the full ConnectState spirc mirrors to
// other devices, just enough to answer "what is this instance doing".
type StatusSnapshot struct {
	DeviceName   string `json:"deviceName"`
	Connected    bool   `json:"connected"`
	PlayerStatus string `json:"playerStatus"`
	TrackURI     string `json:"trackUri,omitempty"`
	PositionMs   int64  `json:"positionMs"`
	QueueLength  int    `json:"queueLength"`
}

// StatusProvider is satisfied by whatever wires the session together
// (typically pkg/session), kept narrow so this package doesn't import
// internal/spirc or internal/player directly.
type StatusProvider interface {
	Status() StatusSnapshot
}

// Server serves the debug HTTP surface.
type Server struct {
	provider StatusProvider
	log      *slog.Logger
}

// New builds a Server reporting snapshots from provider.
func New(provider StatusProvider) *Server {
	return &Server{provider: provider, log: slog.Default().With("component", "controlapi")}
}

// Router returns the chi.Router to mount (directly, or under a path
// prefix) on the process's HTTP listener.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.provider.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.log.Error("encoding status response", "err", err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
