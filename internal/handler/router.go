package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// RouterConfig carries the handlers and settings the gateway routes need.
type RouterConfig struct {
	Health   *HealthHandler
	Threads  *ThreadHandler
	Messages *MessageHandler
	Usage    *UsageHandler
	Stream   *StreamHandler

	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger
}

// NewRouter builds the gateway route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/threads", cfg.Threads.List)
			r.Post("/threads", cfg.Threads.Create)
			r.Put("/active", cfg.Threads.SetActive)

			r.With(
				middleware.RequireScope("chat:send"),
				middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow),
			).Post("/messages", cfg.Messages.Send)
		})

		r.Route("/threads/{threadID}", func(r chi.Router) {
			r.Put("/", cfg.Threads.Rename)
			r.Delete("/", cfg.Threads.Delete)
			r.Get("/messages", cfg.Messages.List)
		})

		r.Get("/usage", cfg.Usage.Get)
		r.Get("/errors/last", cfg.Usage.LastError)
		r.Get("/events", cfg.Stream.Events)
	})

	return r
}
