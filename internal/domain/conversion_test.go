package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redSquare = `<svg xmlns='http://www.w3.org/2000/svg' width='10' height='10'><rect width='10' height='10' fill='red'/></svg>`

func intPtr(v int) *int { return &v }

func TestDocument_SVGContentPassesThrough(t *testing.T) {
	doc, err := ConversionRequest{SVGContent: redSquare}.Document()
	require.NoError(t, err)
	assert.Equal(t, []byte(redSquare), doc.Markup)
	assert.Zero(t, doc.Width)
	assert.Zero(t, doc.Height)
}

func TestDocument_Base64WithDimensions(t *testing.T) {
	req := ConversionRequest{
		SVGBase64:    base64.StdEncoding.EncodeToString([]byte(redSquare)),
		OutputWidth:  intPtr(64),
		OutputHeight: intPtr(32),
	}
	doc, err := req.Document()
	require.NoError(t, err)
	assert.Equal(t, redSquare, string(doc.Markup))
	assert.Equal(t, 64, doc.Width)
	assert.Equal(t, 32, doc.Height)
}

func TestDocument_Base64WinsOverContent(t *testing.T) {
	req := ConversionRequest{
		SVGContent: "ignored",
		SVGBase64:  base64.StdEncoding.EncodeToString([]byte("<SVG></SVG>")),
	}
	doc, err := req.Document()
	require.NoError(t, err)
	assert.Equal(t, "<SVG></SVG>", string(doc.Markup))
}

func TestDocument_UnpaddedBase64(t *testing.T) {
	req := ConversionRequest{SVGBase64: base64.RawStdEncoding.EncodeToString([]byte("<svg/>"))}
	doc, err := req.Document()
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(doc.Markup))
}

func TestDocument_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		req  ConversionRequest
		want error
	}{
		{name: "empty", req: ConversionRequest{}, want: ErrEmptyRequest},
		{name: "not svg", req: ConversionRequest{SVGBase64: "bm90LXN2Zw=="}, want: ErrMissingSVGTag},
		{name: "negative width", req: ConversionRequest{SVGContent: redSquare, OutputWidth: intPtr(-1)}, want: ErrInvalidDimension},
		{name: "negative height", req: ConversionRequest{SVGBase64: "PHN2Zy8+", OutputHeight: intPtr(-5)}, want: ErrInvalidDimension},
		{name: "bad base64", req: ConversionRequest{SVGBase64: "%%%"}, want: ErrInvalidBase64},
		{name: "huge width", req: ConversionRequest{SVGContent: redSquare, OutputWidth: intPtr(200000)}, want: ErrDimensionTooLarge},
		{name: "huge area", req: ConversionRequest{SVGContent: redSquare, OutputWidth: intPtr(16000), OutputHeight: intPtr(16000)}, want: ErrDimensionTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.Document()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
}

func TestDocument_InvalidBase64(t *testing.T) {
	_, err := ConversionRequest{SVGBase64: "%%% not base64 %%%"}.Document()
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Contains(t, err.Error(), "invalid base64")
}

func TestMissingSVGTagMessage(t *testing.T) {
	_, err := ConversionRequest{SVGBase64: "bm90LXN2Zw=="}.Document()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SVG content")
}

func TestContainsSVGTag(t *testing.T) {
	assert.True(t, ContainsSVGTag([]byte("<?xml version='1.0'?><svg></svg>")))
	assert.True(t, ContainsSVGTag([]byte("<SvG width='1'/>")))
	assert.False(t, ContainsSVGTag([]byte("svg without a tag")))
	assert.False(t, ContainsSVGTag(nil))
}

func TestNewResult(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 1, 2, 3)
	res, err := NewResult(png)
	require.NoError(t, err)
	assert.Equal(t, len(png), res.SizeBytes)
	assert.Equal(t, SuccessMessage, res.Message)

	decoded, err := base64.StdEncoding.DecodeString(res.PNGBase64)
	require.NoError(t, err)
	assert.True(t, IsPNG(decoded))
	assert.Equal(t, res.PNGBase64, base64.StdEncoding.EncodeToString(decoded))
}

func TestNewResult_RejectsNonPNG(t *testing.T) {
	_, err := NewResult([]byte("GIF89a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPNG)
	assert.Equal(t, KindConversion, KindOf(err))
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, CheckDimensions(1200, 1200))
	assert.NoError(t, CheckDimensions(MaxDimension, 1))
	assert.ErrorIs(t, CheckDimensions(MaxDimension+1, 1), ErrDimensionTooLarge)
	assert.Equal(t, KindInvalidInput, KindOf(CheckDimensions(200000, 200000)))
}

func TestError_EmptyDoesNotPanic(t *testing.T) {
	assert.Equal(t, "conversion error", ConversionFailed(nil).Error())
	assert.Equal(t, "invalid_input error", (&Error{Kind: KindInvalidInput}).Error())
}

func TestConversionFailed_KeepsExistingKind(t *testing.T) {
	inner := InvalidInput("too big", ErrDimensionTooLarge)
	err := ConversionFailed(fmt.Errorf("render: %w", inner))
	assert.Equal(t, KindInvalidInput, err.Kind)
	assert.ErrorIs(t, err, ErrDimensionTooLarge)
	assert.Equal(t, KindConversion, ConversionFailed(errors.New("boom")).Kind)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindConversion, KindOf(errors.New("boom")))
	wrapped := errors.Join(errors.New("context"), InvalidInput("bad", nil))
	assert.Equal(t, KindInvalidInput, KindOf(wrapped))
	assert.Equal(t, "bad", InvalidInput("bad", nil).Error())
	assert.Equal(t, "invalid_input", KindInvalidInput.String())
}
