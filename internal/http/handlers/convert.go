package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"svg2png/internal/config"
	"svg2png/internal/domain"
	"svg2png/internal/infra/chrome"
	"svg2png/internal/infra/logging"
	"svg2png/internal/render"
)

// poolStatser is implemented by renderers that keep a browser tab pool.
type poolStatser interface {
	PoolStats() (*chrome.Stats, error)
}

// ConvertService bundles configuration and the rendering backend.
type ConvertService struct {
	Config   *config.Config
	Renderer render.Renderer
}

// NewConvertService creates a new ConvertService instance.
func NewConvertService(cfg config.Config, r render.Renderer) *ConvertService {
	return &ConvertService{
		Config:   &cfg,
		Renderer: r,
	}
}

// HandleRoot reports that the service is up and which engine it uses.
func (svc *ConvertService) HandleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "SVG to PNG Converter is running",
		"service": "svg2png",
		"engine":  svc.Renderer.Name(),
	})
}

// HandleHealth always reports healthy.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// HandleConversion renders the posted SVG and returns the PNG as base64.
func (svc *ConvertService) HandleConversion(c *fiber.Ctx) error {
	var req domain.ConversionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: expected JSON with svg_content or svg_base64")
	}

	res, err := svc.convert(c.UserContext(), req)
	if err != nil {
		return toHTTPError(c, err)
	}

	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	logging.Info("PNG generated", "engine", svc.Renderer.Name(), "size_bytes", res.SizeBytes, "request_id", requestID)
	return c.JSON(res)
}

func (svc *ConvertService) convert(ctx context.Context, req domain.ConversionRequest) (domain.ConversionResult, error) {
	doc, err := req.Document()
	if err != nil {
		return domain.ConversionResult{}, err
	}
	png, err := svc.Renderer.Render(ctx, doc)
	if err != nil {
		return domain.ConversionResult{}, domain.ConversionFailed(err)
	}
	return domain.NewResult(png)
}

// toHTTPError maps a domain error to the response status. This is the only
// place where error kinds become HTTP codes.
func toHTTPError(c *fiber.Ctx, err error) error {
	if domain.KindOf(err) == domain.KindInvalidInput {
		logging.Warn("Invalid conversion request", "path", c.Path(), "error", err)
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logging.Error("PNG generation timeout", "error", err)
	case chrome.IsSessionInterrupted(err):
		logging.Error("Chrome session interrupted", "error", err)
	default:
		logging.Error("PNG generation failed", "error", err)
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

// HandleChromeStats exposes basic observability for the Chrome pool (capacity / idle / in_use).
func (svc *ConvertService) HandleChromeStats(c *fiber.Ctx) error {
	ps, ok := svc.Renderer.(poolStatser)
	if !ok {
		return c.JSON(fiber.Map{"enabled": false, "engine": svc.Renderer.Name()})
	}

	s, err := ps.PoolStats()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}
	if s == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.Chrome.PoolSize,
			"profile_dir":    "",
			"timeout_secs":   int(svc.Config.Render.Timeout.Seconds()),
			"restarts":       0,
		})
	}
	return c.JSON(s)
}
