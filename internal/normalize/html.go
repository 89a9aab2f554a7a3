package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LooksLikeHTML reports whether s appears to contain markup.
func LooksLikeHTML(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}

// HTMLText flattens an HTML fragment to a single line of text. Line breaks
// and block boundaries become ", " so address lines stay separated. The
// targets of mailto links are returned alongside, since a link's visible text
// is often a name rather than the address. Input that fails to parse is
// returned cleaned.
func HTMLText(fragment string) (text string, mailto []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CleanText(fragment), nil
	}

	doc.Find(`a[href]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			mailto = append(mailto, addr)
		}
	})

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml(",")
	doc.Find("p, div, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(",")
	})

	return Address(doc.Text()), mailto
}
