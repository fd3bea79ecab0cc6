package callback

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App) {
	// Request ID middleware
	app.Use(requestid.New())

	// Logger middleware
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// Recover middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// CORS middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))

	// Custom error handler
	app.Use(errorHandler())

	// Request metrics
	app.Use(metricsMiddleware())
}

// errorHandler creates a custom error handling middleware
func errorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			errCode := ErrCodeInternalError

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}

			switch code {
			case fiber.StatusNotFound:
				errCode = ErrCodeNotFound
			case fiber.StatusBadRequest:
				errCode = ErrCodeInvalidRequest
			case fiber.StatusUnauthorized:
				errCode = ErrCodeUnauthorized
			case fiber.StatusTooManyRequests:
				errCode = ErrCodeRateLimited
			}

			telemetry.WithError(err).WithFields(logrus.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).Error("request failed")

			return c.Status(code).JSON(NewErrorResponse(message, errCode))
		}
		return nil
	}
}

// metricsMiddleware records request counts and latency per route
func metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// Route() resolves after Next, so parameterized paths are
		// recorded by pattern rather than raw value.
		endpoint := c.Route().Path
		telemetry.RecordHTTPRequest(
			c.Method(),
			endpoint,
			fmt.Sprintf("%d", c.Response().StatusCode()),
			time.Since(start),
		)

		return err
	}
}

// ValidateAPIKey creates a middleware for API key validation
func ValidateAPIKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey != "" {
			// Get API key from header
			key := c.Get("X-API-Key")
			if key == "" {
				// Try Authorization header
				auth := c.Get("Authorization")
				if auth != "" && len(auth) > 7 && auth[:7] == "Bearer " {
					key = auth[7:]
				}
			}

			if key != apiKey {
				return c.Status(fiber.StatusUnauthorized).JSON(
					NewErrorResponse("Invalid or missing API key", ErrCodeUnauthorized),
				)
			}
		}
		return c.Next()
	}
}

// RateLimiter creates a simple in-memory rate limiter
func RateLimiter(requestsPerMinute int) fiber.Handler {
	type client struct {
		count     int
		lastReset time.Time
	}

	var mu sync.Mutex
	clients := make(map[string]*client)

	return func(c *fiber.Ctx) error {
		ip := c.IP()
		now := time.Now()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &client{
				count:     0,
				lastReset: now,
			}
			clients[ip] = cl
		}

		// Reset counter if a minute has passed
		if now.Sub(cl.lastReset) > time.Minute {
			cl.count = 0
			cl.lastReset = now
		}

		if cl.count >= requestsPerMinute {
			mu.Unlock()
			return c.Status(fiber.StatusTooManyRequests).JSON(
				NewErrorResponse("Rate limit exceeded", ErrCodeRateLimited),
			)
		}

		cl.count++
		count := cl.count
		reset := cl.lastReset.Add(time.Minute).Unix()
		mu.Unlock()

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerMinute))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", requestsPerMinute-count))
		c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		return c.Next()
	}
}
