/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router and middleware stack and binds URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique id per request for tracing
  4. CORS:       dashboard front end runs on a different origin

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/leases", func(r chi.Router) {
			r.Post("/", h.CreateLease)
			r.Get("/{id}", h.GetLease)
			r.Get("/{id}/schedule", h.ListSchedule)
			r.Post("/{id}/schedule/regenerate", h.RegenerateSchedule)
			r.Post("/{id}/schedule/reset", h.ResetSchedule)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		r.Route("/entries", func(r chi.Router) {
			r.Post("/{id}/override", h.OverrideEntry)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/regenerate", h.RegenerateAll)
		})
	})

	return r
}
