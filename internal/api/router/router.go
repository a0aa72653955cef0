package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/pratik-mahalle/farmlink/docs"
	"github.com/pratik-mahalle/farmlink/internal/api/handlers"
	"github.com/pratik-mahalle/farmlink/internal/api/middleware"
	"github.com/pratik-mahalle/farmlink/internal/config"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/metrics"
)

type Handlers struct {
	Health     *handlers.HealthHandler
	Connection *handlers.ConnectionHandler
}

func New(cfg *config.Config, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	r.Use(metrics.Middleware)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

		r.Get("/swagger/*", httpSwagger.WrapHandler)
		r.Handle("/metrics", metrics.Handler())

		r.Get("/health", h.Health.Healthz)
		r.Get("/healthz", h.Health.Healthz)
		r.Get("/readyz", h.Health.Readyz)
	})

	// Protected routes (require authentication). Limits apply per user.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
		r.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

		r.Get("/api/v1/providers", h.Connection.Providers)

		r.Route("/api/v1/connections", func(r chi.Router) {
			r.Get("/", h.Connection.List)
			r.Get("/{provider}/status", h.Connection.Status)
			r.Get("/{provider}/authorize", h.Connection.Authorize)
			r.Post("/{provider}/connect", h.Connection.Connect)
			r.Post("/{provider}/disconnect", h.Connection.Disconnect)
			r.Delete("/{provider}", h.Connection.Disconnect)
			r.Get("/{provider}/data/{endpoint}", h.Connection.Fetch)
		})
	})

	return r
}
