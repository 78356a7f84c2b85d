package domain

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// SuccessMessage accompanies every successful conversion.
const SuccessMessage = "SVG converted to PNG successfully"

// Output size limits. One RGBA image at MaxPixels is about 256 MiB.
const (
	MaxDimension = 16384
	MaxPixels    = 64 << 20
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ConversionRequest is the body of POST /convert. SVGBase64 takes precedence
// over SVGContent when both are set.
type ConversionRequest struct {
	SVGContent   string `json:"svg_content,omitempty"`
	SVGBase64    string `json:"svg_base64,omitempty"`
	OutputWidth  *int   `json:"output_width,omitempty"`
	OutputHeight *int   `json:"output_height,omitempty"`
}

// ConversionResult is the body of a successful conversion.
type ConversionResult struct {
	PNGBase64 string `json:"png_base64"`
	SizeBytes int    `json:"size_bytes"`
	Message   string `json:"message"`
}

// Document is validated markup ready for a renderer. Zero Width or Height
// means the renderer picks the size.
type Document struct {
	Markup []byte
	Width  int
	Height int
}

// Document validates the request and returns the markup to render.
func (r ConversionRequest) Document() (Document, error) {
	width, height, err := r.dimensions()
	if err != nil {
		return Document{}, err
	}

	if r.SVGBase64 != "" {
		raw, err := decodeBase64(r.SVGBase64)
		if err != nil {
			return Document{}, InvalidInput("", fmt.Errorf("%w: %v", ErrInvalidBase64, err))
		}
		if !ContainsSVGTag(raw) {
			return Document{}, InvalidInput("", ErrMissingSVGTag)
		}
		return Document{Markup: raw, Width: width, Height: height}, nil
	}

	if r.SVGContent == "" {
		return Document{}, InvalidInput("", ErrEmptyRequest)
	}
	return Document{Markup: []byte(r.SVGContent), Width: width, Height: height}, nil
}

func (r ConversionRequest) dimensions() (int, int, error) {
	var w, h int
	if r.OutputWidth != nil {
		w = *r.OutputWidth
	}
	if r.OutputHeight != nil {
		h = *r.OutputHeight
	}
	if w < 0 || h < 0 {
		return 0, 0, InvalidInput("", ErrInvalidDimension)
	}
	if err := CheckDimensions(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// CheckDimensions rejects output sizes whose pixel buffer could not
// reasonably be allocated.
func CheckDimensions(width, height int) error {
	if width > MaxDimension || height > MaxDimension || width*height > MaxPixels {
		return InvalidInput(fmt.Sprintf("%dx%d exceeds %dx%d or %d pixels", width, height, MaxDimension, MaxDimension, MaxPixels), ErrDimensionTooLarge)
	}
	return nil
}

// decodeBase64 accepts standard encoding with or without padding and ignores
// surrounding whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return raw, nil
	}
	if raw, rerr := base64.RawStdEncoding.DecodeString(s); rerr == nil {
		return raw, nil
	}
	return nil, err
}

// ContainsSVGTag reports whether the text holds an "<svg" tag, ignoring case.
func ContainsSVGTag(b []byte) bool {
	return bytes.Contains(bytes.ToLower(b), []byte("<svg"))
}

// IsPNG reports whether b starts with the PNG file signature.
func IsPNG(b []byte) bool {
	return bytes.HasPrefix(b, pngSignature)
}

// NewResult encodes rendered PNG bytes for the response.
func NewResult(png []byte) (ConversionResult, error) {
	if !IsPNG(png) {
		return ConversionResult{}, ConversionFailed(ErrNotPNG)
	}
	return ConversionResult{
		PNGBase64: base64.StdEncoding.EncodeToString(png),
		SizeBytes: len(png),
		Message:   SuccessMessage,
	}, nil
}
