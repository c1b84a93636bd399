package overlay

import (
	"fmt"
	"image/color"

	"cnic-overlay/pkg/colorutil"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LegendBand is one row of the legend key.
type LegendBand struct {
	Label string     `json:"label"`
	Range string     `json:"range"`
	Color color.RGBA `json:"-"`
	CSS   string     `json:"color"`
	Hex   string     `json:"hex"`
}

// FieldStat describes how one field was drawn.
type FieldStat struct {
	Field          string     `json:"field"`
	Name           string     `json:"name"`
	Confidence     float64    `json:"confidence"`
	ConfidenceText string     `json:"confidence_text"`
	Band           string     `json:"band"`
	Color          color.RGBA `json:"-"`
	CSS            string     `json:"color"`
}

func (s FieldStat) String() string {
	return fmt.Sprintf("%s — %s — %s", s.Name, s.ConfidenceText, s.Band)
}

// BandCount is the number of fields that fell into a band.
type BandCount struct {
	Band  string `json:"band"`
	Count int    `json:"count"`
}

// Summary aggregates the confidences of the listed fields.
type Summary struct {
	Count      int         `json:"count"`
	Mean       float64     `json:"mean"`
	Min        float64     `json:"min"`
	Max        float64     `json:"max"`
	BandCounts []BandCount `json:"band_counts"`
}

// Legend is the key and per-field statistics shown next to the overlay.
type Legend struct {
	Bands   []LegendBand `json:"bands"`
	Stats   []FieldStat  `json:"stats"`
	Summary Summary      `json:"summary"`
}

// BuildLegend returns the fixed band key and one stat per field, in field
// order. Colors come from the same ConfidenceColor call the renderer makes,
// and a field the renderer would skip is skipped here with a warning.
func BuildLegend(fields []Field) (Legend, []Warning) {
	legend := Legend{
		Bands: LegendBands(),
		Stats: make([]FieldStat, 0, len(fields)),
	}

	var warnings []Warning
	var confidences []float64

	for _, f := range fields {
		col, err := colorutil.ConfidenceColor(f.Confidence)
		if err != nil {
			warnings = append(warnings, Warning{Field: f.Name, Err: err})
			continue
		}

		legend.Stats = append(legend.Stats, FieldStat{
			Field:          f.Name,
			Name:           DisplayName(f.Name),
			Confidence:     f.Confidence,
			ConfidenceText: Percent(f.Confidence),
			Band:           colorutil.BandFor(f.Confidence).Name,
			Color:          col,
			CSS:            colorutil.CSS(col),
		})
		confidences = append(confidences, f.Confidence)
	}

	legend.Summary = summarize(confidences)

	return legend, warnings
}

// LegendBands returns the five-band key with swatches taken at each band's
// representative confidence. It does not depend on any field data.
func LegendBands() []LegendBand {
	bands := colorutil.Bands()
	out := make([]LegendBand, 0, len(bands))
	for _, b := range bands {
		col, err := colorutil.ConfidenceColor(b.Representative)
		if err != nil {
			panic(fmt.Sprintf("band %s: %v", b.Name, err))
		}
		out = append(out, LegendBand{
			Label: b.Name,
			Range: b.Range,
			Color: col,
			CSS:   colorutil.CSS(col),
			Hex:   colorutil.Hex(col),
		})
	}
	return out
}

func summarize(confidences []float64) Summary {
	bands := colorutil.Bands()
	s := Summary{
		Count:      len(confidences),
		BandCounts: make([]BandCount, len(bands)),
	}
	for i, b := range bands {
		s.BandCounts[i].Band = b.Name
	}

	if len(confidences) == 0 {
		return s
	}

	s.Mean = stat.Mean(confidences, nil)
	s.Min = floats.Min(confidences)
	s.Max = floats.Max(confidences)

	for _, c := range confidences {
		s.BandCounts[colorutil.BandFor(c).Index()].Count++
	}

	return s
}
