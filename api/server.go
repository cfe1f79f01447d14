/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/bookings/*       Bookings, entries, payments, deposits, requests
  /api/health           Liveness probe

SECURITY NOTE:
  No authentication middleware currently. Actor identity arrives as the
  X-Actor-ID header and is trusted for audit purposes only.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Post("/", h.CreateBooking)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetBooking)

				r.Get("/entries", h.ListEntries)
				r.Delete("/entries/{entryID}", h.DeleteEntry)

				r.Post("/payments", h.CreateManualPayment)
				r.Post("/deposits", h.ApplyDeposits)

				r.Route("/requests", func(r chi.Router) {
					r.Get("/", h.ListRequests)
					r.Post("/", h.SubmitRequest)
					r.Post("/{requestID}/approve", h.ApproveRequest)
					r.Post("/{requestID}/reject", h.RejectRequest)
					r.Post("/{requestID}/notify", h.NotifyRequest)
				})
			})
		})
	})

	return r
}
