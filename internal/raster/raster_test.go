package raster

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"cnic-overlay/internal/overlay"
	"cnic-overlay/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func square(x0, y0, x1, y1 float64) []geometry.Point2D {
	return []geometry.Point2D{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestRasterCopiesBase(t *testing.T) {
	base := whiteImage(10, 10)
	r := New(base, DefaultFontSize)

	r.Stroke(square(2, 2, 7, 7), color.RGBA{R: 255, A: 255}, 1)

	assert.Equal(t, white, base.RGBAAt(2, 2), "base must stay untouched")
	assert.Equal(t, color.RGBA{R: 255, A: 255}, r.Image().RGBAAt(2, 2))
}

func TestRasterStrokeWidth(t *testing.T) {
	r := New(whiteImage(40, 40), DefaultFontSize)
	red := color.RGBA{R: 255, A: 255}

	r.Stroke(square(10, 10, 30, 30), red, 3)
	img := r.Image()

	// 3px brush covers one pixel either side of the edge
	assert.Equal(t, red, img.RGBAAt(20, 9))
	assert.Equal(t, red, img.RGBAAt(20, 10))
	assert.Equal(t, red, img.RGBAAt(20, 11))
	assert.NotEqual(t, red, img.RGBAAt(20, 12))
	assert.NotEqual(t, red, img.RGBAAt(20, 8))

	// closing edge from the last vertex back to the first
	assert.Equal(t, red, img.RGBAAt(10, 20))
}

func TestRasterStrokeFarVertex(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}

	for _, far := range []float64{1e8, 1e12, 1e20, math.MaxFloat64} {
		r := New(whiteImage(100, 100), DefaultFontSize)

		start := time.Now()
		r.Stroke([]geometry.Point2D{{X: 10, Y: 10}, {X: far, Y: 10}}, red, 3)
		assert.Less(t, time.Since(start), time.Second, "far=%g", far)

		img := r.Image()
		assert.Equal(t, red, img.RGBAAt(10, 10), "far=%g", far)
		assert.Equal(t, red, img.RGBAAt(99, 10), "far=%g", far)
		assert.Equal(t, red, img.RGBAAt(60, 11), "far=%g", far)
		assert.Equal(t, white, img.RGBAAt(5, 10), "far=%g", far)
		assert.Equal(t, white, img.RGBAAt(60, 13), "far=%g", far)
	}
}

func TestRasterStrokeAcrossWholeRange(t *testing.T) {
	r := New(whiteImage(20, 20), DefaultFontSize)
	red := color.RGBA{R: 255, A: 255}

	r.Stroke([]geometry.Point2D{{X: -math.MaxFloat64, Y: 5}, {X: math.MaxFloat64, Y: 5}}, red, 1)

	for x := 0; x < 20; x++ {
		assert.Equal(t, red, r.Image().RGBAAt(x, 5), "x=%d", x)
	}
	assert.Equal(t, white, r.Image().RGBAAt(3, 6))
}

func TestRasterFillBlends(t *testing.T) {
	r := New(whiteImage(20, 20), DefaultFontSize)

	r.Fill(square(5, 5, 15, 15), color.RGBA{G: 255, A: 255}, 0.5)
	img := r.Image()

	assert.Equal(t, color.RGBA{R: 128, G: 255, B: 128, A: 255}, img.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{R: 128, G: 255, B: 128, A: 255}, img.RGBAAt(5, 5))
	assert.Equal(t, white, img.RGBAAt(15, 15), "right and bottom edges are exclusive")
	assert.Equal(t, white, img.RGBAAt(4, 10))
}

func TestRasterFillFarCoordinates(t *testing.T) {
	shade := color.RGBA{R: 255, G: 0, B: 0, A: 255}

	t.Run("off image", func(t *testing.T) {
		for _, poly := range [][]geometry.Point2D{
			square(1e20, 40, 2e20, 60),
			square(-2e20, 40, -1e20, 60),
			square(10, 1e20, 50, 2e20),
			square(10, -2e20, 50, -1e20),
		} {
			r := New(whiteImage(100, 100), DefaultFontSize)
			r.Fill(poly, shade, 0.5)
			assert.Equal(t, whiteImage(100, 100).Pix, r.Image().Pix, "polygon %v", poly)
		}
	})

	t.Run("covering the image", func(t *testing.T) {
		r := New(whiteImage(10, 10), DefaultFontSize)
		r.Fill(square(-1e20, -1e20, 1e20, 1e20), shade, 1)
		assert.Equal(t, shade, r.Image().RGBAAt(0, 0))
		assert.Equal(t, shade, r.Image().RGBAAt(9, 9))
	})
}

func TestRasterClipsOutOfBounds(t *testing.T) {
	r := New(whiteImage(10, 10), DefaultFontSize)

	require.NotPanics(t, func() {
		r.Stroke(square(-20, -20, 40, 40), color.RGBA{A: 255}, 3)
		r.Fill(square(-20, -20, 40, 40), color.RGBA{A: 255}, 0.1)
		r.DrawText("far away", -100, -100, color.RGBA{A: 255})
		r.DrawText("below", 5, 500, color.RGBA{A: 255})
	})
	assert.Equal(t, image.Rect(0, 0, 10, 10), r.Image().Bounds())
}

func TestRasterTextFarAnchor(t *testing.T) {
	for _, x := range []float64{1e20, -1e20} {
		r := New(whiteImage(60, 30), DefaultFontSize)
		r.DrawText("full name (95.0%)", x, 20, color.RGBA{A: 255})
		assert.Equal(t, whiteImage(60, 30).Pix, r.Image().Pix, "x=%g", x)
	}
}

func TestRasterText(t *testing.T) {
	r := New(whiteImage(120, 30), DefaultFontSize)

	assert.Greater(t, r.MeasureText("full name"), 0.0)
	assert.Greater(t, r.MeasureText("full name (95.0%)"), r.MeasureText("full name"))
	assert.Equal(t, 0.0, r.MeasureText(""))

	black := color.RGBA{A: 255}
	r.DrawText("Hg", 5, 20, black)

	inked := 0
	img := r.Image()
	for y := 0; y < 30; y++ {
		for x := 0; x < 120; x++ {
			if img.RGBAAt(x, y) != white {
				inked++
			}
		}
	}
	assert.Greater(t, inked, 0)
}

func TestRasterIsDeterministic(t *testing.T) {
	paint := func() *image.RGBA {
		r := Factory(DefaultFontSize)(whiteImage(60, 40))
		poly := square(10, 15, 50, 35)
		r.Stroke(poly, color.RGBA{R: 13, G: 242, A: 255}, 3)
		r.Fill(poly, color.RGBA{R: 13, G: 242, A: 255}, 0.1)
		r.DrawText("x (95.0%)", 10, 10, color.RGBA{R: 13, G: 242, A: 255})
		return r.Image()
	}

	assert.Equal(t, paint().Pix, paint().Pix)
}

func TestRenderOffImageFieldLeavesBaseUntouched(t *testing.T) {
	renderer := overlay.NewRenderer(Factory(DefaultFontSize), overlay.DefaultOptions())
	base := whiteImage(100, 100)

	composite, warnings := renderer.Render(base, []overlay.Field{
		{Name: "full_name", Polygon: square(1e20, 40, 2e20, 60), Confidence: 0.95},
		{Name: "cnic", Polygon: square(-2e20, 40, -1e20, 60), Confidence: 0.5},
	})

	assert.Empty(t, warnings)
	assert.Equal(t, base.Pix, composite.Image.Pix)
}

func TestRenderFarVertexFinishes(t *testing.T) {
	renderer := overlay.NewRenderer(Factory(DefaultFontSize), overlay.DefaultOptions())

	start := time.Now()
	composite, warnings := renderer.Render(whiteImage(100, 100), []overlay.Field{
		{Name: "full_name", Polygon: []geometry.Point2D{{X: 10, Y: 10}, {X: 1e12, Y: 10}}, Confidence: 0.95},
	})
	assert.Less(t, time.Since(start), time.Second)

	assert.Empty(t, warnings)
	assert.Equal(t, color.RGBA{R: 13, G: 242, B: 0, A: 255}, composite.Image.RGBAAt(60, 10))
}
