// Package normalize holds the pure value normalizers applied to raw fields
// scraped from state licensing sources. Every function returns a best-effort
// normalized value, or the raw input when it cannot do better; none panic on
// malformed input.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanText applies NFKC normalization (folding non-breaking spaces and
// full-width forms), collapses runs of whitespace, and trims.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// IsAbsent reports whether a raw value stands for "no data". Sources use
// both the empty string and an "N/A" placeholder for the same thing.
func IsAbsent(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.EqualFold(t, "n/a")
}
