package normalize

import (
	"net/url"
	"strings"
)

// URI trims a link and reports whether it is an absolute http(s) URI.
func URI(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", true
	}
	return s, IsAbsoluteURL(s)
}

// IsAbsoluteURL reports whether s parses as an absolute http or https URI
// with a host and no embedded whitespace.
func IsAbsoluteURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
