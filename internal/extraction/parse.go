package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cnic-overlay/pkg/geometry"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ErrInvalidResult is returned when a payload does not match the result contract.
var ErrInvalidResult = errors.New("invalid extraction result")

// resultSchema is the wire contract: an object keyed by field name whose values
// are null or {value?, confidence?, bbox?}. Confidence range and polygon size
// are checked per field by the overlay, not here.
const resultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": ["object", "null"],
    "properties": {
      "value": {"type": ["string", "null"]},
      "confidence": {"type": ["number", "null"]},
      "bbox": {
        "type": ["array", "null"],
        "items": {
          "type": "array",
          "minItems": 2,
          "items": {"type": "number"}
        }
      }
    }
  }
}`

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("result.json")
})

// Parse validates data against the result contract and decodes it, keeping
// the document order of the fields.
func Parse(data []byte) (*Result, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	result := NewResult()

	// encoding/json maps lose key order, so walk the raw document instead.
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		result.Set(key.String(), parseField(value))
		return true
	})

	return result, nil
}

func parseField(value gjson.Result) Field {
	var f Field
	if value.Type == gjson.Null {
		return f
	}

	if v := value.Get("value"); v.Exists() && v.Type != gjson.Null {
		s := v.String()
		f.Value = &s
	}

	if c := value.Get("confidence"); c.Exists() && c.Type != gjson.Null {
		x := c.Float()
		f.Confidence = &x
	}

	if b := value.Get("bbox"); b.Exists() && b.Type != gjson.Null {
		vertices := b.Array()
		f.Polygon = make([]geometry.Point2D, 0, len(vertices))
		for _, vertex := range vertices {
			xy := vertex.Array()
			f.Polygon = append(f.Polygon, geometry.Point2D{X: xy[0].Float(), Y: xy[1].Float()})
		}
	}

	return f
}

type wireField struct {
	Value      *string      `json:"value"`
	Confidence *float64     `json:"confidence"`
	BBox       [][2]float64 `json:"bbox"`
}

// MarshalJSON encodes the result in the wire format, preserving field order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, nf := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(nf.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		wf := wireField{Value: nf.Value, Confidence: nf.Confidence}
		if nf.Polygon != nil {
			wf.BBox = make([][2]float64, len(nf.Polygon))
			for j, p := range nf.Polygon {
				wf.BBox[j] = [2]float64{p.X, p.Y}
			}
		}

		val, err := json.Marshal(wf)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
