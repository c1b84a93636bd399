package overlay

import "cnic-overlay/pkg/geometry"

// FieldAt returns the field drawn on top at p, searching in reverse paint
// order. Two-vertex fields are never hit.
func FieldAt(fields []Field, p geometry.Point2D) (Field, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if geometry.PointInPolygon(p, geometry.TruncatePolygon(fields[i].Polygon)) {
			return fields[i], true
		}
	}
	return Field{}, false
}
