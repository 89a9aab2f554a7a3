package normalize

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// ExtractEmails returns the distinct email addresses in text, in order of
// first appearance. Case is ignored when comparing.
func ExtractEmails(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.Trim(m, ".")
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// Email returns the addresses found in raw joined with ", ". When none are
// found the cleaned input is returned with false.
func Email(raw string) (string, bool) {
	s := CleanText(strings.TrimPrefix(strings.TrimSpace(raw), "mailto:"))
	if s == "" {
		return "", true
	}
	found := ExtractEmails(s)
	if len(found) == 0 {
		return s, false
	}
	return strings.Join(found, ", "), true
}

// SplitEmails pulls email addresses out of an address blob. It returns the
// distinct emails and the blob with every match (in any spelling) and any
// leftover "mailto:" markers removed.
func SplitEmails(blob string) (emails []string, rest string) {
	emails = ExtractEmails(blob)
	if len(emails) == 0 {
		return nil, blob
	}
	return emails, StripAll(emailPattern.ReplaceAllString(blob, " "), "mailto:")
}
