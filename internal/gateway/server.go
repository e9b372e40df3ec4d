package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Method(http.MethodGet, "/metrics", g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}
		r.Get("/status", g.handleStatus())
		r.Get("/ws/sessions/{id}", g.handleFollow())
		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", g.handleListSessions())
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", g.handleDeleteSession())
				r.Get("/transcript", g.handleTranscript())
				r.Get("/approvals", g.handleListApprovals())
				r.Post("/approvals/{approvalID}", g.handleDecision())
				r.Post("/messages", g.handleMessage())
			})
		})
	})

	return r
}
