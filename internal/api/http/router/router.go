package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dtroode/secret-relay/internal/api/http/handler"
	"github.com/dtroode/secret-relay/internal/api/http/middleware"
	"github.com/dtroode/secret-relay/internal/logger"
)

// Config holds the dependencies of the HTTP routing tree.
type Config struct {
	Relay          handler.Relay
	Diagnostics    handler.Decryptor
	HealthChecks   []handler.Pinger
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	MaxBodyBytes   int64
	EnableDebug    bool
	Logger         *logger.Logger
}

// New builds the chi router of the relay HTTP API.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLogging(cfg.Logger).Handle)
	r.Use(chimw.Recoverer)
	r.Use(middleware.MaxBytes(cfg.MaxBodyBytes))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handle)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	messages := handler.NewMessage(cfg.Relay, cfg.Logger)
	r.Route("/messages", func(r chi.Router) {
		r.Post("/", messages.Submit)
		r.Get("/{userID}", messages.Fetch)
	})

	if cfg.EnableDebug && cfg.Diagnostics != nil {
		debug := handler.NewDebug(cfg.Diagnostics, cfg.Logger)
		r.Post("/debug/decrypt", debug.Decrypt)
	}

	r.Get("/healthz", handler.NewHealth(cfg.Logger, cfg.HealthChecks...).Check)

	return r
}
