package pinfetch

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// LinkExtractor finds platform links in free-form message text
type LinkExtractor struct {
	pattern *regexp.Regexp
}

// NewLinkExtractor builds an extractor matching links on the platform's main and short domains
func NewLinkExtractor(p Platform) *LinkExtractor {
	expr := `https?://(?:www\.)?(?:` + regexp.QuoteMeta(p.Domain) + `/\S+`
	if p.ShortDomain != "" {
		expr += `|` + regexp.QuoteMeta(p.ShortDomain) + `/\S+`
	}
	expr += `)`
	return &LinkExtractor{pattern: regexp.MustCompile(`(?i)` + expr)}
}

// Extract returns the distinct links in text, in order of first appearance.
// Full-width characters are folded first and trailing punctuation is trimmed.
func (e *LinkExtractor) Extract(text string) []string {
	text = width.Fold.String(text)

	var links []string
	seen := make(map[string]bool)
	for _, m := range e.pattern.FindAllString(text, -1) {
		link := strings.TrimRight(m, `.,;:!?)]}>"'`)
		if seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}
