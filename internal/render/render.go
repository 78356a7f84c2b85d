// Package render turns validated SVG documents into PNG bytes. Two backends
// exist: a headless Chrome screenshot pipeline and the in-process oksvg
// rasterizer.
package render

import (
	"context"
	"fmt"

	"svg2png/internal/config"
	"svg2png/internal/domain"
)

// Renderer is a rendering backend.
type Renderer interface {
	// Name identifies the engine in status responses.
	Name() string
	// Render returns PNG bytes for doc.
	Render(ctx context.Context, doc domain.Document) ([]byte, error)
	// Close releases backend resources. Render must not be called afterwards.
	Close() error
}

// New builds the renderer selected by cfg.Render.Engine.
func New(cfg config.Config) (Renderer, error) {
	switch cfg.Render.Engine {
	case config.EngineChromium:
		return NewBrowser(cfg), nil
	case config.EngineOksvg:
		return NewRaster(cfg), nil
	default:
		return nil, fmt.Errorf("unknown render engine %q", cfg.Render.Engine)
	}
}

// targetSize resolves the output size from the document, falling back to the
// configured viewport.
func targetSize(cfg config.Config, doc domain.Document) (int, int) {
	w, h := doc.Width, doc.Height
	if w <= 0 {
		w = cfg.Render.ViewportWidth
	}
	if h <= 0 {
		h = cfg.Render.ViewportHeight
	}
	return w, h
}
