package normalize

import (
	"strings"
)

// Phone formats a number as "(XXX) XXX-XXXX" when exactly ten digits remain
// after stripping everything else. Any other input comes back trimmed and
// unchanged, with false.
func Phone(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", true
	}

	digits := make([]byte, 0, 10)
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) != 10 {
		return trimmed, false
	}

	var b strings.Builder
	b.Grow(14)
	b.WriteByte('(')
	b.Write(digits[:3])
	b.WriteString(") ")
	b.Write(digits[3:6])
	b.WriteByte('-')
	b.Write(digits[6:])
	return b.String(), true
}
