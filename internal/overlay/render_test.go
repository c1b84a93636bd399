package overlay_test

import (
	"image"
	"image/color"
	"testing"

	"cnic-overlay/internal/extraction"
	"cnic-overlay/internal/overlay"
	"cnic-overlay/internal/raster"
	"cnic-overlay/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func sampleResult() *extraction.Result {
	r := extraction.NewResult()
	r.Set("full_name", extraction.Field{
		Value:      extraction.String("Ali Khan"),
		Confidence: extraction.Float(0.95),
		Polygon:    []geometry.Point2D{{X: 10, Y: 30}, {X: 90, Y: 30}, {X: 90, Y: 60}, {X: 10, Y: 60}},
	})
	return r
}

func TestRenderEndToEnd(t *testing.T) {
	fields, warnings := overlay.Normalize(sampleResult())
	require.Empty(t, warnings)

	renderer := overlay.NewRenderer(raster.Factory(raster.DefaultFontSize), overlay.DefaultOptions())
	composite, warnings := renderer.Render(whiteImage(100, 100), fields)
	require.Empty(t, warnings)

	assert.Equal(t, 100, composite.Width)
	assert.Equal(t, 100, composite.Height)
	assert.Equal(t, []string{"full_name"}, composite.Drawn)

	stroke := color.RGBA{R: 13, G: 242, A: 255}
	assert.Equal(t, stroke, composite.Image.RGBAAt(50, 60), "bottom edge")
	assert.Equal(t, stroke, composite.Image.RGBAAt(90, 45), "right edge")

	inside := composite.Image.RGBAAt(50, 45)
	assert.Greater(t, inside.G, inside.R, "interior shading leans green")
	assert.Greater(t, inside.G, inside.B)
	assert.Less(t, inside.R, uint8(255))

	legend, warnings := overlay.BuildLegend(fields)
	require.Empty(t, warnings)
	require.Len(t, legend.Stats, 1)
	assert.Equal(t, "full name — 95.0% — Very High", legend.Stats[0].String())
}

func TestRenderIsIdempotent(t *testing.T) {
	r := extraction.NewResult()
	r.Set("full_name", extraction.Field{
		Confidence: extraction.Float(0.95),
		Polygon:    []geometry.Point2D{{X: 10, Y: 30}, {X: 90, Y: 30}, {X: 90, Y: 60}, {X: 10, Y: 60}},
	})
	r.Set("cnic", extraction.Field{
		Confidence: extraction.Float(0.62),
		Polygon:    []geometry.Point2D{{X: 15.5, Y: 70.2}, {X: 85, Y: 72}, {X: 80, Y: 95}},
	})
	r.Set("edge", extraction.Field{
		Confidence: extraction.Float(0.1),
		Polygon:    []geometry.Point2D{{X: 2, Y: 1}, {X: 98, Y: 1}},
	})

	fields, _ := overlay.Normalize(r)
	renderer := overlay.NewRenderer(raster.Factory(raster.DefaultFontSize), overlay.DefaultOptions())
	base := whiteImage(100, 100)

	first, _ := renderer.Render(base, fields)
	second, _ := renderer.Render(base, fields)

	assert.Equal(t, first.Image.Pix, second.Image.Pix)
	assert.Equal(t, whiteImage(100, 100).Pix, base.Pix, "base image is not modified")
}

func TestRenderPartialFailure(t *testing.T) {
	r := extraction.NewResult()
	r.Set("full_name", extraction.Field{
		Confidence: extraction.Float(0.95),
		Polygon:    []geometry.Point2D{{X: 10, Y: 30}, {X: 90, Y: 30}, {X: 90, Y: 60}},
	})
	r.Set("father_name", extraction.Field{
		Confidence: extraction.Float(0.8),
		Polygon:    []geometry.Point2D{{X: 10, Y: 30}},
	})
	r.Set("cnic", extraction.Field{
		Confidence: extraction.Float(0.7),
		Polygon:    []geometry.Point2D{{X: 10, Y: 70}, {X: 90, Y: 70}, {X: 90, Y: 90}},
	})

	fields, warnings := overlay.Normalize(r)
	require.Len(t, warnings, 1)
	assert.Equal(t, "father_name", warnings[0].Field)
	assert.ErrorIs(t, warnings[0], overlay.ErrMalformedGeometry)

	renderer := overlay.NewRenderer(raster.Factory(raster.DefaultFontSize), overlay.DefaultOptions())
	composite, renderWarnings := renderer.Render(whiteImage(100, 100), fields)

	assert.Empty(t, renderWarnings)
	assert.Equal(t, []string{"full_name", "cnic"}, composite.Drawn)
}
