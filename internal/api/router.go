package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated monitoring
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket authenticates in the handler (browsers cannot set headers)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/properties/{name}", s.handleGetProperty)
					r.Put("/properties", s.handleSetProperties)
					r.Post("/anticipate", s.handleAnticipate)
					r.Post("/refresh", s.handleRefresh)
					r.Get("/history", s.handleGetHistory)
				})
			})

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", s.handleListProfiles)
				r.Get("/{id}", s.handleGetProfile)
				r.Post("/match", s.handleMatchProfiles)
			})
		})
	})

	return r
}

// handleHealth returns the server health status and device totals.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"devices":           s.registry.Stats(),
		"websocket_clients": s.hub.ClientCount(),
	})
}

// handleMetrics serves the Prometheus exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "metrics are disabled")
		return
	}
	s.metrics.SetRegistryStats(s.registry.Stats())
	s.metrics.Handler().ServeHTTP(w, r)
}
