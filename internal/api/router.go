/**
 * @description
 * HTTP router setup for the relay service using go-chi/chi.
 */
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/app"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/metrics"
)

// RouterOptions carries the route-level security settings.
type RouterOptions struct {
	JWKSURL                 string
	ReleaseSecret           string
	Limiter                 app.RateLimiter
	RelayRateLimitPerMinute int
	Logger                  *slog.Logger
}

// NewRouter creates a new Chi router and registers the relay service routes.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/relay", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(BearerAuthMiddleware(opts.JWKSURL))
		r.With(RateLimitMiddleware(opts.Limiter, "deposit", opts.RelayRateLimitPerMinute, logger)).
			Post("/deposit", h.handleDeposit)
		r.With(RateLimitMiddleware(opts.Limiter, "withdraw", opts.RelayRateLimitPerMinute, logger)).
			Post("/withdraw", h.handleWithdraw)
	})

	// Release runs carry their own deadline; see Handler.releaseTimeout.
	r.Route("/internal/escrow", func(r chi.Router) {
		r.Use(SharedSecretMiddleware(opts.ReleaseSecret))
		r.Post("/release", h.handleRelease)
		r.Get("/release", h.handleRelease)
	})

	return r
}
