package overlay

import (
	"fmt"
	"log/slog"

	"cnic-overlay/internal/extraction"
	"cnic-overlay/pkg/geometry"
)

// Field is a renderable field: a polygon with at least two finite vertices
// and a confidence.
type Field struct {
	Name       string
	Polygon    []geometry.Point2D
	Confidence float64
}

// Normalize selects the renderable fields of result in insertion order. That
// order is the paint order (later fields paint over earlier ones) and the
// legend order.
//
// Fields without a polygon or without a confidence are skipped silently. A
// present polygon with fewer than two vertices or a non-finite vertex is
// dropped with a warning wrapping ErrMalformedGeometry.
func Normalize(result *extraction.Result) ([]Field, []Warning) {
	var fields []Field
	var warnings []Warning

	for _, nf := range result.Fields() {
		if nf.Polygon == nil || nf.Confidence == nil {
			slog.Debug("field has no geometry", "field", nf.Name)
			continue
		}

		if len(nf.Polygon) < 2 {
			warnings = append(warnings, Warning{
				Field: nf.Name,
				Err:   fmt.Errorf("%w: %d vertices, need at least 2", ErrMalformedGeometry, len(nf.Polygon)),
			})
			continue
		}

		if !geometry.AllFinite(nf.Polygon) {
			warnings = append(warnings, Warning{
				Field: nf.Name,
				Err:   fmt.Errorf("%w: non-finite vertex", ErrMalformedGeometry),
			})
			continue
		}

		polygon := make([]geometry.Point2D, len(nf.Polygon))
		copy(polygon, nf.Polygon)

		fields = append(fields, Field{
			Name:       nf.Name,
			Polygon:    polygon,
			Confidence: *nf.Confidence,
		})
	}

	return fields, warnings
}
