package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/concert-booking/internal/observability"
	"github.com/robertarktes/concert-booking/internal/rateLimit"
)

// SetupRouter mounts the API. rl may be nil to disable rate limiting.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, ratePerMinute int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Route("/concert-service", func(r chi.Router) {
		r.Use(SessionMiddleware(h.auth))

		r.Post("/login", h.Login)
		r.Get("/concerts", h.ListConcerts)
		r.Get("/concerts/summaries", h.ListConcertSummaries)
		r.Get("/concerts/{id}", h.GetConcert)
		r.Get("/performers", h.ListPerformers)
		r.Get("/performers/{id}", h.GetPerformer)
		r.Get("/seats/{date}", h.GetSeats)
		r.Get("/bookings", h.ListBookings)
		r.Get("/bookings/{id}", h.GetBooking)
		r.With(RateLimitMiddleware(rl, ratePerMinute), IdempotencyMiddleware).Post("/bookings", h.CreateBooking)
		r.Post("/subscribe/concertInfo", h.Subscribe)
	})

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
