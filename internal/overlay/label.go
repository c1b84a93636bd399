package overlay

import (
	"fmt"
	"strings"
)

// DisplayName replaces the underscores in a field key with spaces.
func DisplayName(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// Percent formats a confidence as a percentage with one decimal, e.g. "92.3%".
func Percent(confidence float64) string {
	return fmt.Sprintf("%.1f%%", confidence*100)
}

// Label is the text drawn next to a field, e.g. "full name (92.3%)".
func Label(name string, confidence float64) string {
	return fmt.Sprintf("%s (%s)", DisplayName(name), Percent(confidence))
}
