package model

import (
	"sort"
	"strings"
)

// supportedStates is the closed set of jurisdictions with a source adapter.
var supportedStates = map[string]string{
	"AK": "Alaska",
	"AL": "Alabama",
	"AR": "Arkansas",
	"CA": "California",
	"CO": "Colorado",
	"IL": "Illinois",
	"MS": "Mississippi",
	"NM": "New Mexico",
	"NY": "New York",
	"OH": "Ohio",
	"PA": "Pennsylvania",
	"TX": "Texas",
	"UT": "Utah",
	"VA": "Virginia",
}

// NormalizeState trims and upper-cases a state code. It does not validate.
func NormalizeState(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsSupportedState reports whether code (already normalized) is in the
// supported set.
func IsSupportedState(code string) bool {
	_, ok := supportedStates[code]
	return ok
}

// StateName returns the full name for a supported state code, or "".
func StateName(code string) string {
	return supportedStates[NormalizeState(code)]
}

// SupportedStates returns the supported codes in sorted order.
func SupportedStates() []string {
	out := make([]string, 0, len(supportedStates))
	for code := range supportedStates {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// ExtensionPrefix returns the field namespace for a state, e.g. "va_".
func ExtensionPrefix(state string) string {
	return strings.ToLower(NormalizeState(state)) + "_"
}

// ExtensionState returns the upper-case state code a key is namespaced
// under, or "" when the key does not follow the "<xx>_<name>" convention.
func ExtensionState(key string) string {
	if len(key) < 4 || key[2] != '_' {
		return ""
	}
	for i := 0; i < 2; i++ {
		if key[i] < 'a' || key[i] > 'z' {
			return ""
		}
	}
	for i := 3; i < len(key); i++ {
		c := key[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return ""
		}
	}
	return strings.ToUpper(key[:2])
}
