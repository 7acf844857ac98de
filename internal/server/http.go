package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/protocol"
)

// Health is the body served at /healthz
type Health struct {
	Status      string `json:"status"`
	Protocol    string `json:"protocol"`
	Version     string `json:"version,omitempty"`
	Path        string `json:"path"`
	Connections int    `json:"connections"`
}

// Handler returns the HTTP handler serving the WebSocket endpoint, /healthz
// and any Config.Routes. Tests mount it on an httptest server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(s.config.Path, s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	for _, register := range s.config.Routes {
		register(r)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(Health{
		Status:      "ok",
		Protocol:    protocol.Version,
		Version:     s.config.Version,
		Path:        s.config.Path,
		Connections: s.GetActiveConnections(),
	})
	if err != nil {
		logging.Debug("Failed to write health response", zap.Error(err))
	}
}

// handleWebSocket upgrades the request and serves bridge frames until the
// peer disconnects or the server shuts down
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := r.RemoteAddr
	s.wg.Add(1)
	defer s.wg.Done()

	s.track(remoteAddr, conn)
	defer s.untrack(remoteAddr)

	logging.LogConnection(remoteAddr, "connection_accepted")

	if err := HandleWebSocketConnection(r.Context(), conn, remoteAddr, s.handler); err != nil {
		logging.Error("WebSocket connection error",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}
