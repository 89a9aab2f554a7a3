package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var numberToken = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// Number reduces a count such as "1,200", "45.0", or "Capacity: 45" to a
// plain integer string. Input holding no number, several numbers, or a
// fractional value is returned cleaned, with false.
func Number(raw string) (string, bool) {
	s := CleanText(raw)
	if s == "" {
		return "", true
	}

	tokens := numberToken.FindAllString(s, -1)
	if len(tokens) != 1 {
		return s, false
	}
	tok := strings.ReplaceAll(tokens[0], ",", "")

	if whole, frac, ok := strings.Cut(tok, "."); ok {
		if strings.Trim(frac, "0") != "" {
			return s, false
		}
		tok = whole
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return s, false
	}
	if strings.HasPrefix(strings.TrimSpace(s), "-") {
		return s, false
	}
	return strconv.FormatInt(n, 10), true
}
