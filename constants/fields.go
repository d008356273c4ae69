package constants

import "strings"

// DefaultFields is the CBC panel the bundled severity model was trained on, in
// training-column order. A loaded model's own feature list always takes precedence.
var DefaultFields = []string{
	"Hemoglobin (g/dL)",
	"RBC Count (million/µL)",
	"WBC Count (cells/µL)",
	"Platelet Count (cells/µL)",
	"Hematocrit (%)",
	"MCV (fL)",
	"MCH (pg)",
	"MCHC (g/dL)",
}

// ParseFieldList splits a comma- or semicolon-separated list of field names.
// Commas inside parentheses are kept, so "Count (cells, µL)" stays one field.
func ParseFieldList(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
	)
	flush := func() {
		if f := strings.TrimSpace(cur.String()); f != "" {
			out = append(out, f)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case (r == ',' || r == ';') && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}
