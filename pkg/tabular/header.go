package tabular

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader maps a header cell to the form aliases are matched in:
// lowercase, accents stripped, every run of characters outside [a-z0-9]
// collapsed to one "_", no leading or trailing "_".
// "Hora de Salida " and "hora_de_salida" both become "hora_de_salida".
// The result is stable under re-normalization.
func NormalizeHeader(h string) string {
	s := strings.ToLower(strings.TrimSpace(h))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	return b.String()
}
