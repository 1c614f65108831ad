// Package linkextract finds bare links in plain message text.
package linkextract

import (
	"regexp"
	"strings"
)

// trailingPunctuation is stripped from matches; it usually ends the sentence, not the link.
const trailingPunctuation = ".,;:!?"

var urlRegex = regexp.MustCompile(`(?i)https?://[^\s\])]+`)

// Link is a bare URL found in text.
type Link struct {
	URL string
	// Position is the byte offset of the match in the source text.
	Position int
}

// ExtractLinks returns every bare http(s) link in text in order of appearance.
// Duplicates are kept; callers dedupe on their own key.
func ExtractLinks(text string) []Link {
	if text == "" {
		return nil
	}

	matches := urlRegex.FindAllStringIndex(text, -1)
	links := make([]Link, 0, len(matches))

	for _, match := range matches {
		raw := strings.TrimRight(text[match[0]:match[1]], trailingPunctuation)
		if raw == "" {
			continue
		}

		links = append(links, Link{URL: raw, Position: match[0]})
	}

	return links
}

// ExtractURLs is ExtractLinks without positions.
func ExtractURLs(text string) []string {
	links := ExtractLinks(text)
	if len(links) == 0 {
		return nil
	}

	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}

	return urls
}
