package catalog

import (
	"strconv"
	"strings"
)

// The assignments file stores species/confidence/uncertainty arrays; depending
// on how a given batch was exported they arrive as DuckDB lists rendered to
// text ("[a, b]"), sometimes with curly quotes from a spreadsheet round trip.
// These parsers normalize all observed shapes.

var quoteNormalizer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// parseStringArray parses a rendered list of strings. A bare scalar (no
// brackets) is treated as a single-element list.
func parseStringArray(raw string) []string {
	raw = strings.TrimSpace(quoteNormalizer.Replace(raw))
	if raw == "" || raw == "[]" || strings.EqualFold(raw, "null") {
		return nil
	}
	if !strings.HasPrefix(raw, "[") {
		return []string{unquote(raw)}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	if strings.TrimSpace(inner) == "" {
		return nil
	}
	parts := splitTopLevel(inner)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := unquote(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseFloatArray parses a rendered list of numbers. Unparseable entries
// become 0, keeping indexes aligned with the species array.
func parseFloatArray(raw string) []float64 {
	raw = strings.TrimSpace(quoteNormalizer.Replace(raw))
	if raw == "" || raw == "[]" || strings.EqualFold(raw, "null") {
		return nil
	}
	if !strings.HasPrefix(raw, "[") {
		return []float64{parseFloat(raw)}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	if strings.TrimSpace(inner) == "" {
		return nil
	}
	parts := splitTopLevel(inner)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		out = append(out, parseFloat(unquote(p)))
	}
	return out
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// splitTopLevel splits on commas that are not inside quotes.
func splitTopLevel(s string) []string {
	var parts []string
	var current strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			current.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			current.WriteByte(c)
		case c == ',':
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
