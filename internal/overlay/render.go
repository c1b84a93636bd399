package overlay

import (
	"image"
	"image/color"
	"log/slog"

	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/pkg/colorutil"
	"cnic-overlay/pkg/geometry"
)

// Canvas is the drawing surface the renderer paints on. Coordinates are
// image pixels.
type Canvas interface {
	// Stroke outlines the closed polygon.
	Stroke(polygon []geometry.Point2D, c color.RGBA, width float64)
	// Fill paints the closed polygon at the given opacity (0-1).
	Fill(polygon []geometry.Point2D, c color.RGBA, alpha float64)
	// DrawText draws text with its baseline starting at (x,y).
	DrawText(text string, x, y float64, c color.RGBA)
	// MeasureText returns the advance width of text in pixels.
	MeasureText(text string) float64
	// Image returns the raster drawn so far.
	Image() *image.RGBA
}

// CanvasFactory returns a new Canvas holding a private copy of base.
type CanvasFactory func(base image.Image) Canvas

// Options controls stroke, fill and label geometry.
type Options struct {
	LineWidth    float64 // Outline width in pixels
	FillAlpha    float64 // Opacity of the polygon shading
	LabelOffset  float64 // Baseline distance above the first vertex
	PlatePadding float64 // Horizontal padding around the label text
	PlateRise    float64 // Plate top, measured up from the baseline
	PlateHeight  float64
	PlateAlpha   float64 // Opacity of the white label plate
}

// DefaultOptions returns the standard overlay styling.
func DefaultOptions() Options {
	return Options{
		LineWidth:    3,
		FillAlpha:    0.1,
		LabelOffset:  5,
		PlatePadding: 2,
		PlateRise:    16,
		PlateHeight:  18,
		PlateAlpha:   0.8,
	}
}

// Renderer draws normalized fields over a base image.
type Renderer struct {
	NewCanvas CanvasFactory
	Options   Options
	Logger    *slog.Logger
}

// NewRenderer creates a Renderer drawing through factory.
func NewRenderer(factory CanvasFactory, opts Options) *Renderer {
	return &Renderer{
		NewCanvas: factory,
		Options:   opts,
		Logger:    slog.Default(),
	}
}

// Render paints fields, in order, over a fresh copy of base. A field whose
// confidence cannot be colored is skipped with a warning. The result has the
// same size as base and depends only on the inputs.
func (r *Renderer) Render(base image.Image, fields []Field) (*cnicimage.Composite, []Warning) {
	cv := r.NewCanvas(base)

	var drawn []string
	var warnings []Warning

	for _, f := range fields {
		if err := r.drawField(cv, f); err != nil {
			warnings = append(warnings, Warning{Field: f.Name, Err: err})
			continue
		}
		drawn = append(drawn, f.Name)
	}

	LogWarnings(r.logger(), "field not drawn", warnings)

	return cnicimage.NewComposite(cv.Image(), drawn), warnings
}

func (r *Renderer) drawField(cv Canvas, f Field) error {
	col, err := colorutil.ConfidenceColor(f.Confidence)
	if err != nil {
		return err
	}

	polygon := geometry.TruncatePolygon(f.Polygon)

	cv.Stroke(polygon, col, r.Options.LineWidth)
	cv.Fill(polygon, col, r.Options.FillAlpha)

	label := Label(f.Name, f.Confidence)
	anchor, plate := LabelPlacement(polygon, cv.MeasureText(label), r.Options)

	cv.Fill(plate.Polygon(), colorutil.White, r.Options.PlateAlpha)
	cv.DrawText(label, anchor.X, anchor.Y, col)

	return nil
}

// LabelPlacement returns the text baseline origin and the background plate
// for a label of the given width. The label sits just above the polygon's
// first vertex and is not clamped to the image.
func LabelPlacement(polygon []geometry.Point2D, textWidth float64, opts Options) (geometry.Point2D, geometry.Rect) {
	first := polygon[0].Truncate()
	anchor := geometry.Point2D{X: first.X, Y: first.Y - opts.LabelOffset}

	plate := geometry.NewRect(
		anchor.X-opts.PlatePadding,
		anchor.Y-opts.PlateRise,
		textWidth+2*opts.PlatePadding,
		opts.PlateHeight,
	)
	return anchor, plate
}

func (r *Renderer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
