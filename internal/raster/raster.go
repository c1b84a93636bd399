// Package raster is the pixel surface the overlay renderer draws on. It has
// no GUI dependencies so the headless binaries can link it.
package raster

import (
	"image"
	"image/color"
	"math"
	"sync"

	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"
	"cnic-overlay/pkg/geometry"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DefaultFontSize is the label size in pixels.
const DefaultFontSize = 14

// labelFont is Go Regular, a sans-serif face bundled with x/image so label
// metrics do not depend on the host's fonts.
var labelFont = sync.OnceValue(func() *opentype.Font {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		panic("raster: parse bundled font: " + err.Error())
	}
	return f
})

// Raster draws onto a private RGBA copy of a base image.
type Raster struct {
	output *image.RGBA
	face   font.Face
}

var _ overlay.Canvas = (*Raster)(nil)

// New copies base and prepares a label face of the given pixel size.
func New(base image.Image, fontSize float64) *Raster {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}

	face, err := opentype.NewFace(labelFont(), &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		panic("raster: create font face: " + err.Error())
	}

	return &Raster{
		output: cnicimage.Clone(base),
		face:   face,
	}
}

// Factory returns an overlay.CanvasFactory producing Rasters. Each call gets
// its own face, so renders can run concurrently.
func Factory(fontSize float64) overlay.CanvasFactory {
	return func(base image.Image) overlay.Canvas {
		return New(base, fontSize)
	}
}

// Image returns the raster drawn so far.
func (r *Raster) Image() *image.RGBA {
	return r.output
}

// Stroke draws the closed polygon outline with a square brush of the given
// width. Edges are clipped to the raster before they are walked, so the cost
// depends on the image size rather than on how far a vertex lies outside it.
func (r *Raster) Stroke(polygon []geometry.Point2D, col color.RGBA, width float64) {
	thickness := int(math.Round(width))
	if thickness < 1 {
		thickness = 1
	}

	n := len(polygon)
	for i := 0; i < n; i++ {
		r.strokeSegment(polygon[i], polygon[(i+1)%n], col, thickness)
	}
}

func (r *Raster) strokeSegment(a, b geometry.Point2D, col color.RGBA, thickness int) {
	// split until the deltas are representable
	if math.IsInf(b.X-a.X, 0) || math.IsInf(b.Y-a.Y, 0) {
		mid := geometry.Point2D{X: a.X/2 + b.X/2, Y: a.Y/2 + b.Y/2}
		r.strokeSegment(a, mid, col, thickness)
		r.strokeSegment(mid, b, col, thickness)
		return
	}

	bounds := r.output.Bounds()
	half := float64(thickness / 2)
	box := [4]float64{
		float64(bounds.Min.X) - half, float64(bounds.Min.Y) - half,
		float64(bounds.Max.X-1) + half, float64(bounds.Max.Y-1) + half,
	}

	p, q, ok := clipSegment(a, b, box)
	if !ok {
		return
	}
	r.drawLine(int(math.Round(p.X)), int(math.Round(p.Y)), int(math.Round(q.X)), int(math.Round(q.Y)), col, thickness)
}

// clipSegment clips a-b to the box {minX, minY, maxX, maxY} (Liang-Barsky).
// It reports false when the segment misses the box. Clipped ends are placed
// on the box edge that cut them, interpolated from the nearer endpoint so
// that vertices far outside the box keep their precision.
func clipSegment(a, b geometry.Point2D, box [4]float64) (geometry.Point2D, geometry.Point2D, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	in, out := -1, -1

	edges := [4][2]float64{
		{-dx, a.X - box[0]},
		{dx, box[2] - a.X},
		{-dy, a.Y - box[1]},
		{dy, box[3] - a.Y},
	}
	for i, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			if t > t0 {
				t0, in = t, i
			}
		} else {
			if t < t0 {
				return a, b, false
			}
			if t < t1 {
				t1, out = t, i
			}
		}
	}

	start, end := a, b
	if in >= 0 {
		start = onEdge(a, b, box[in], in < 2)
	}
	if out >= 0 {
		end = onEdge(a, b, box[out], out < 2)
	}
	return start, end, true
}

// onEdge returns the point of line a-b on x=v (vertical) or y=v.
func onEdge(a, b geometry.Point2D, v float64, vertical bool) geometry.Point2D {
	if !vertical {
		a, b = geometry.Point2D{X: a.Y, Y: a.X}, geometry.Point2D{X: b.Y, Y: b.X}
	}
	if math.Abs(v-a.X) > math.Abs(v-b.X) {
		a, b = b, a
	}
	w := a.Y + (b.Y-a.Y)*((v-a.X)/(b.X-a.X))
	if !vertical {
		return geometry.Point2D{X: w, Y: v}
	}
	return geometry.Point2D{X: v, Y: w}
}

// Fill shades the polygon interior, sampling at pixel centers, blending col
// over the existing pixels at the given opacity. Span ends are clamped to the
// raster in float space before conversion to pixel indices.
func (r *Raster) Fill(polygon []geometry.Point2D, col color.RGBA, alpha float64) {
	if len(polygon) < 3 || alpha <= 0 {
		return
	}

	bounds := r.output.Bounds()
	box := geometry.BoundingBox(polygon)

	minY := math.Max(math.Floor(box.Y), float64(bounds.Min.Y))
	maxY := math.Min(math.Ceil(box.Y+box.Height), float64(bounds.Max.Y-1))
	if !(minY <= maxY) {
		return
	}

	left, right := float64(bounds.Min.X), float64(bounds.Max.X-1)

	for y := int(minY); y <= int(maxY); y++ {
		for _, span := range geometry.ScanlineSpans(polygon, float64(y)+0.5) {
			// pixel x is covered when its center x+0.5 lies in [x0, x1)
			x0 := math.Max(math.Ceil(span[0]-0.5), left)
			x1 := math.Min(math.Ceil(span[1]-0.5)-1, right)
			if !(x0 <= x1) {
				continue
			}
			for x := int(x0); x <= int(x1); x++ {
				cnicimage.BlendPixel(r.output, x, y, col, alpha)
			}
		}
	}
}

// DrawText draws text with its baseline origin at (x,y). Text that cannot
// reach the raster is not drawn.
func (r *Raster) DrawText(text string, x, y float64, col color.RGBA) {
	bounds := r.output.Bounds()
	metrics := r.face.Metrics()
	ascent := float64(metrics.Ascent) / 64
	descent := float64(metrics.Descent) / 64

	if x > float64(bounds.Max.X) || x+r.MeasureText(text) < float64(bounds.Min.X) ||
		y-ascent > float64(bounds.Max.Y) || y+descent < float64(bounds.Min.Y) {
		return
	}

	d := &font.Drawer{
		Dst:  r.output,
		Src:  image.NewUniform(col),
		Face: r.face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(math.Round(x * 64)), Y: fixed.Int26_6(math.Round(y * 64))},
	}
	d.DrawString(text)
}

// MeasureText returns the advance width of text in pixels.
func (r *Raster) MeasureText(text string) float64 {
	return float64(font.MeasureString(r.face, text)) / 64
}

// drawLine draws a line between two points using Bresenham's algorithm.
func (r *Raster) drawLine(x1, y1, x2, y2 int, col color.RGBA, thickness int) {
	bounds := r.output.Bounds()

	dx := x2 - x1
	dy := y2 - y1
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}

	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}

	err := dx - dy

	for {
		// Draw thick point
		for t := -thickness / 2; t <= thickness/2; t++ {
			for s := -thickness / 2; s <= thickness/2; s++ {
				px, py := x1+s, y1+t
				if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
					r.output.SetRGBA(px, py, col)
				}
			}
		}

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}
