package normalize

import (
	"strings"
)

// SplitList splits a delimited string on commas, semicolons, and newlines.
// Entries are cleaned and empty ones dropped. Order and repeats are kept.
func SplitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	return CleanList(parts)
}

// CleanList cleans each entry of an adapter-supplied list and drops empty or
// placeholder entries. Entries are not split further.
func CleanList(items []string) []string {
	var out []string
	for _, item := range items {
		item = CleanText(item)
		if item == "" || IsAbsent(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}
