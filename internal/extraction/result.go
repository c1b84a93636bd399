// Package extraction defines the extraction result contract produced by the
// OCR backend and the client that fetches it.
package extraction

import (
	"cnic-overlay/pkg/geometry"
)

// Field is a single extracted datum. A nil pointer or nil slice means the
// backend did not supply that part; a non-nil empty Polygon is present but
// has no vertices.
type Field struct {
	Value      *string
	Confidence *float64
	Polygon    []geometry.Point2D
}

// NamedField pairs a field with its key in the result.
type NamedField struct {
	Name string
	Field
}

// Result maps field names to fields and remembers insertion order.
type Result struct {
	fields []NamedField
	index  map[string]int
}

// NewResult creates an empty Result.
func NewResult() *Result {
	return &Result{index: make(map[string]int)}
}

// Set stores a field. Replacing an existing name keeps its original position.
func (r *Result) Set(name string, f Field) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Field = f
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, NamedField{Name: name, Field: f})
}

// Get returns the field stored under name.
func (r *Result) Get(name string) (Field, bool) {
	if r == nil {
		return Field{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return Field{}, false
	}
	return r.fields[i].Field, true
}

// Fields returns the fields in insertion order. The slice is a copy.
func (r *Result) Fields() []NamedField {
	if r == nil {
		return nil
	}
	out := make([]NamedField, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Float returns a pointer to v, for building fields in code.
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to v, for building fields in code.
func String(v string) *string {
	return &v
}
