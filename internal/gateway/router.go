package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())

	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	// The memory API. Bearer auth applies only when a token is configured;
	// without one the server should stay on loopback.
	r.Group(func(r chi.Router) {
		if g.config.BearerToken != "" {
			r.Use(authMiddleware(g.config.BearerToken))
		}
		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Post("/turns", g.handleAddTurn())
			r.Get("/history", g.handleHistory())
			r.Get("/search", g.handleSearch())
			r.Delete("/conversations", g.handleClearConversation())
			r.Delete("/conversations/all", g.handleClearAll())
			r.Post("/sweep", g.handleSweep())
			r.Post("/snapshot", g.handleSnapshot())
		})
	})

	return r
}
