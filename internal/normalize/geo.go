package normalize

import (
	"net/url"
	"strconv"
	"strings"
)

// MapCenter extracts the "center=lat,lon" query parameter that static map
// image URLs carry. It returns empty strings and false on any failure.
func MapCenter(rawURL string) (lat, lon string, ok bool) {
	s := strings.ReplaceAll(strings.TrimSpace(rawURL), "&amp;", "&")
	if s == "" {
		return "", "", false
	}

	var center string
	if u, err := url.Parse(s); err == nil {
		center = u.Query().Get("center")
	}
	if center == "" {
		// Fall back to a plain scan for fragments url.Parse rejects.
		i := strings.Index(s, "center=")
		if i < 0 {
			return "", "", false
		}
		center = s[i+len("center="):]
		if j := strings.IndexAny(center, "&#"); j >= 0 {
			center = center[:j]
		}
		if unescaped, err := url.QueryUnescape(center); err == nil {
			center = unescaped
		}
	}

	latStr, lonStr, found := strings.Cut(center, ",")
	if !found {
		return "", "", false
	}
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if !inRange(latStr, 90) || !inRange(lonStr, 180) {
		return "", "", false
	}
	return latStr, lonStr, true
}

// Coordinate validates a decimal-degree value.
func Coordinate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", true
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return s, false
	}
	return s, true
}

func inRange(s string, limit float64) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f >= -limit && f <= limit
}
