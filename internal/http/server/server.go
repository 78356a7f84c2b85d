package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"svg2png/internal/config"
	"svg2png/internal/http/handlers"
	"svg2png/internal/http/middleware"
	"svg2png/internal/infra/logging"
	"svg2png/internal/render"
)

// Deps are the collaborators the HTTP app is built from.
type Deps struct {
	Config   config.Config
	Renderer render.Renderer
}

type closedReporter interface {
	Closed() bool
}

// New creates and configures the Fiber app. The route table is fixed at
// construction.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, d.Config, middleware.Probes{
		Ready: func() bool {
			cr, ok := d.Renderer.(closedReporter)
			return !ok || !cr.Closed()
		},
	})
	RegisterRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app.
func RegisterRoutes(app *fiber.App, d Deps) {
	svc := handlers.NewConvertService(d.Config, d.Renderer)

	app.Get("/", svc.HandleRoot)
	app.Get("/health", handlers.HandleHealth)
	app.Post("/convert", svc.HandleConversion)
	app.Get("/chrome/stats", svc.HandleChromeStats)

	app.Get("/ops/monitor", monitor.New())
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		msg = e.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"detail": msg,
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
