package normalize

import (
	"strings"
)

// JoinAddress joins address fragments (street, city, state, zip) with ", ".
// Empty and placeholder fragments are omitted entirely, so the result never
// has a leading, trailing, or doubled separator.
func JoinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = trimFragment(p)
		if p == "" || IsAbsent(p) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ", ")
}

// Address normalizes a single-line address. The text is split on commas and
// rejoined under the JoinAddress rule, which repairs blobs such as
// ", Springfield, IL 62704" left behind by sources with a blank street.
func Address(raw string) string {
	return JoinAddress(strings.Split(raw, ",")...)
}

// StripAll removes every occurrence of each needle from text and re-applies
// the address rule to what remains.
func StripAll(text string, needles ...string) string {
	for _, n := range needles {
		if n == "" {
			continue
		}
		text = strings.ReplaceAll(text, n, " ")
	}
	return Address(text)
}

func trimFragment(s string) string {
	return strings.Trim(CleanText(s), ", ")
}
