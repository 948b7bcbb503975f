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
		r.Handle("/metrics", g.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if g.config.BearerToken != "" {
			r.Use(authMiddleware(g.config.BearerToken, g.logger))
		}
		r.Get("/health", g.handleHealth())
		r.Get("/jobs", g.handleListJobs())
		r.Get("/jobs/{id}", g.handleGetJob())
		r.Post("/jobs/{id}/queue", g.handleQueueJob())
		r.Get("/jobs/{id}/runs", g.handleJobRuns())
		r.Get("/runs", g.handleRuns())
		if g.events != nil {
			r.Get("/events", g.handleEvents())
		}
	})

	return r
}
