package middleware

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"svg2png/internal/config"
	"svg2png/internal/infra/logging"
	"svg2png/internal/infra/ratelimit"
)

// Probes decide the /ops/live and /ops/ready answers. Nil probes always pass.
type Probes struct {
	Live  func() bool
	Ready func() bool
}

// Register attaches global middleware to the app.
func Register(app *fiber.App, cfg config.Config, probes ...Probes) {
	var p Probes
	if len(probes) > 0 {
		p = probes[0]
	}

	app.Use(recover.New())

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/live",
		LivenessProbe:     probe(p.Live),
		ReadinessEndpoint: "/ops/ready",
		ReadinessProbe:    probe(p.Ready),
	}))

	if cfg.RateLimiter.UserLimit > 0 {
		store := ratelimit.NewStore(ratelimit.RedisConfig{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		app.Use(UserRateLimit(cfg, store))
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}

func probe(fn func() bool) healthcheck.HealthChecker {
	return func(*fiber.Ctx) bool {
		return fn == nil || fn()
	}
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// UserRateLimit limits requests per client (IP + User-Agent) over a sliding
// window. Health endpoints are exempt.
func UserRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"detail": "Too Many Requests",
				"error": fiber.Map{
					"code":    fiber.StatusTooManyRequests,
					"message": "Too Many Requests",
				},
			})
		},
	})
}
