/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the booking frontend

ROUTE GROUPS:
  /api/bookings/*        Booking and cancellation (identified)
  /api/availability      Free slots
  /api/demand-classes/*  Prices
  /api/courts/*          Courts and maintenance
  /api/users/*           Registration and profile
  /api/tasks/*           Task statistics and manual processing
  /health                Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", UserIDHeader},
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/bookings", func(r chi.Router) {
			r.Use(h.requireUser)
			r.Post("/", h.CreateBooking)
			r.Get("/mine", h.MyBookings)
			r.Post("/{id}/cancel", h.CancelBooking)
		})

		r.Get("/availability", h.Availability)
		r.Get("/schedule", h.Schedule)

		r.Route("/demand-classes", func(r chi.Router) {
			r.Get("/", h.ListDemandClasses)
			r.Get("/{id}/prices", h.PriceHistory)
			r.With(h.requireUser).Post("/{id}/prices", h.UpdatePrice)
		})

		r.Route("/courts", func(r chi.Router) {
			r.Get("/", h.ListCourts)
			r.With(h.requireUser).Put("/{id}/maintenance", h.SetMaintenance)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.With(h.requireUser).Get("/me", h.Me)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/stats", h.TaskStats)
			r.With(h.requireUser).Post("/process", h.ProcessTasks)
		})
	})

	return r
}
