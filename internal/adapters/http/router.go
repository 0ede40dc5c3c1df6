package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/huntmap/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many requests, please try again later")
		},
		Next: func(c *fiber.Ctx) bool {
			// long-lived sockets are not request traffic
			return websocket.IsWebSocketUpgrade(c)
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/map/token", timeout.NewWithContext(MapTokenHandler(deps), requestTimeout))

	teams := v1.Group("/teams/:team")
	teams.Get("/areas", timeout.NewWithContext(ListAreasHandler(deps), requestTimeout))
	teams.Post("/areas", timeout.NewWithContext(CreateAreaHandler(deps), requestTimeout))
	teams.Get("/passes", timeout.NewWithContext(ListPassesHandler(deps), requestTimeout))
	teams.Post("/passes", timeout.NewWithContext(CreatePassHandler(deps), requestTimeout))
	teams.Get("/features", timeout.NewWithContext(FeaturesHandler(deps), requestTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	// WebSocket
	app.Use("/ws", requireUpgrade)
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	app.Get("/ws/map", websocket.New(MapSocketHandler(deps)))
}
