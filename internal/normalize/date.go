package normalize

import (
	"strings"
	"time"
)

// ISODate is the canonical output layout for date fields.
const ISODate = "2006-01-02"

// dateLayouts are tried in order. Layouts with a time component only
// contribute their date.
var dateLayouts = []string{
	ISODate,
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan. 2, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan. 02, 2006",
	"Jan 02, 2006",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
}

// Date converts a raw date to YYYY-MM-DD. When no layout matches it returns
// the input with only surrounding space trimmed, and false.
func Date(raw string) (string, bool) {
	s := CleanText(raw)
	if s == "" {
		return "", true
	}
	candidate := fixMonthAbbrev(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format(ISODate), true
		}
	}
	return strings.TrimSpace(raw), false
}

// fixMonthAbbrev rewrites the "Sept." spelling Go's parser does not accept.
func fixMonthAbbrev(s string) string {
	for _, sept := range []string{"Sept.", "sept.", "SEPT.", "Sept ", "sept ", "SEPT "} {
		if i := strings.Index(s, sept); i >= 0 {
			return s[:i+3] + s[i+4:]
		}
	}
	return s
}
