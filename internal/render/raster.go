package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"svg2png/internal/config"
	"svg2png/internal/domain"
)

// Raster renders SVG in-process with oksvg and rasterx.
type Raster struct {
	cfg config.Config
}

func NewRaster(cfg config.Config) *Raster {
	return &Raster{cfg: cfg}
}

func (r *Raster) Name() string { return config.EngineOksvg }

func (r *Raster) Close() error { return nil }

func (r *Raster) Render(ctx context.Context, doc domain.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := oksvg.IgnoreErrorMode
	if r.cfg.Raster.Strict {
		mode = oksvg.StrictErrorMode
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc.Markup), mode)
	if err != nil {
		return nil, fmt.Errorf("error decoding SVG: %w", err)
	}

	w, h := r.outputSize(icon.ViewBox.W, icon.ViewBox.H, doc)
	if err := domain.CheckDimensions(w, h); err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if r.cfg.Render.Background != config.BackgroundTransparent {
		draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	}
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// outputSize honours explicit dimensions. A single explicit dimension keeps
// the viewBox aspect ratio. Without a usable viewBox the viewport is used.
func (r *Raster) outputSize(vbW, vbH float64, doc domain.Document) (int, int) {
	hasBox := vbW > 0 && vbH > 0
	switch {
	case doc.Width > 0 && doc.Height > 0:
		return doc.Width, doc.Height
	case doc.Width > 0 && hasBox:
		return doc.Width, atLeastOne(float64(doc.Width) * vbH / vbW)
	case doc.Height > 0 && hasBox:
		return atLeastOne(float64(doc.Height) * vbW / vbH), doc.Height
	case hasBox && doc.Width == 0 && doc.Height == 0:
		return atLeastOne(vbW), atLeastOne(vbH)
	default:
		return targetSize(r.cfg, doc)
	}
}

// atLeastOne rounds v to a pixel count. Values past MaxDimension are clamped
// just above it so the size check still rejects them.
func atLeastOne(v float64) int {
	if v > domain.MaxDimension || math.IsInf(v, 1) {
		return domain.MaxDimension + 1
	}
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
