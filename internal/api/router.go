package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/findperson/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/findperson/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/findperson/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/findperson/internal/database"
	"github.com/saturnino-fabrica-de-software/findperson/internal/ws"
)

// SessionService is implemented by *service.SessionManager
type SessionService interface {
	handler.SessionService
	handler.SessionCounter
}

// Dependencies are built by the caller, which also owns their lifecycle.
// Background workers (hub, webhook worker, metrics aggregator) are not
// started here.
type Dependencies struct {
	References handler.ReferenceService
	Sessions   SessionService
	Webhooks   handler.WebhookService
	Metrics    handler.MetricsReader
	Hub        *ws.Hub
	DB         database.Pinger

	// APIKeyHashes are the SHA-256 hex digests of the accepted keys
	APIKeyHashes []string
	// RateLimit overrides the default per-key request budget
	RateLimit *middleware.RateLimiterConfig
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FindPerson API",
		BodyLimit:    64 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var (
		db      database.Pinger
		counter handler.SessionCounter
	)
	if r.deps != nil {
		db = r.deps.DB
		if r.deps.Sessions != nil {
			counter = r.deps.Sessions
		}
	}
	healthHandler := handler.NewHealthHandler(db, counter)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	// Only configure authenticated routes if dependencies were provided
	if r.deps == nil {
		return
	}

	// API v1 group with authentication
	v1 := r.app.Group("/v1")
	v1.Use(middleware.Auth(r.deps.APIKeyHashes))

	// Rate limiting per API key - must come after auth to have the subject
	rlConfig := middleware.DefaultRateLimiterConfig()
	rlConfig.PerEndpoint = middleware.SessionRateLimits()
	if r.deps.RateLimit != nil {
		rlConfig = *r.deps.RateLimit
	}
	r.rateLimiter = middleware.NewRateLimiter(rlConfig)
	v1.Use(r.rateLimiter.Handler())

	if r.deps.References != nil {
		references := handler.NewReferenceHandler(r.deps.References, r.logger)
		v1.Post("/references", references.Create)
		v1.Get("/references", references.List)
		v1.Get("/references/:id", references.Get)
		v1.Delete("/references/:id", references.Delete)
	}

	if r.deps.Sessions != nil {
		sessions := handler.NewSessionHandler(r.deps.Sessions, r.deps.Metrics, r.logger)
		v1.Post("/sessions", sessions.Start)
		v1.Get("/sessions", sessions.List)
		v1.Get("/sessions/:id", sessions.Get)
		v1.Delete("/sessions/:id", sessions.Stop)
		v1.Get("/sessions/:id/detections", sessions.Detections)
		v1.Get("/sessions/:id/snapshot", sessions.Snapshot)
		if r.deps.Metrics != nil {
			v1.Get("/sessions/:id/metrics", sessions.Metrics)
		}
	}

	if r.deps.Webhooks != nil {
		webhooks := handler.NewWebhookHandler(r.deps.Webhooks, r.logger)
		v1.Get("/webhooks", webhooks.List)
		v1.Post("/webhooks", webhooks.Create)
		v1.Delete("/webhooks/:id", webhooks.Delete)
	}

	// WebSocket endpoint
	if r.deps.Hub != nil {
		v1.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
