package callback

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// SetupRoutes configures all callback service routes
func SetupRoutes(app *fiber.App, handler *Handler, config *Config) {
	// Platform push endpoints. These authenticate with the callback
	// signature, not the API key.
	app.Get("/callback", handler.VerifyURL)
	app.Post("/callback", RateLimiter(config.RateLimit), handler.ReceiveEvent)

	// Session API
	v1 := app.Group("/v1")
	v1.Use(RateLimiter(config.RateLimit))
	if config.APIKey != "" {
		v1.Use(ValidateAPIKey(config.APIKey))
	}

	sessions := v1.Group("/sessions")
	sessions.Post("/", handler.Login)
	sessions.Get("/:openid", handler.GetSession)
	sessions.Delete("/:openid", handler.DeleteSession)

	// Health and metrics endpoints (no auth required)
	app.Get("/health", handler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.PrometheusHandler()))

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "weapp-bridge-callback",
			"version": "1.0.0",
			"status":  "running",
			"endpoints": fiber.Map{
				"callback": fiber.Map{
					"verify":  "GET /callback",
					"receive": "POST /callback",
				},
				"sessions": fiber.Map{
					"login":  "POST /v1/sessions",
					"get":    "GET /v1/sessions/:openid",
					"delete": "DELETE /v1/sessions/:openid",
				},
				"health":  "GET /health",
				"metrics": "GET /metrics",
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Endpoint not found", ErrCodeNotFound),
		)
	})
}
