// Package overlay turns an extraction result into drawable field geometry,
// renders it over the source image and builds the confidence legend.
package overlay

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrMalformedGeometry is returned for a present polygon that cannot be drawn.
var ErrMalformedGeometry = errors.New("malformed geometry")

// Warning records a problem isolated to one field. The field is left out of
// the overlay and the legend; everything else is still drawn.
type Warning struct {
	Field string
	Err   error
}

func (w Warning) Error() string {
	return fmt.Sprintf("field %q: %v", w.Field, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}

// LogWarnings writes one record per warning.
func LogWarnings(logger *slog.Logger, msg string, warnings []Warning) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range warnings {
		logger.Warn(msg, "field", w.Field, "error", w.Err)
	}
}
