// Package filters implements the per-pair link whitelist.
//
// Every link a message carries is collected and normalized:
//   - bare URLs in the text
//   - hyperlink span targets
//   - the web page preview URL
//   - inline button URLs
//
// A message passes when it has no links or when every link is whitelisted.
// Albums are judged on the union of the links of all their items.
package filters

import (
	"sort"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/links"
	"github.com/lueurxax/telegram-channel-relay/internal/core/links/linkextract"
)

// ReasonNotWhitelisted is the rejection reason recorded for audit.
const ReasonNotWhitelisted = "filter_not_whitelisted"

// LinkSource holds the message parts links are collected from.
type LinkSource struct {
	Text       string
	Entities   []domain.Span
	PreviewURL string
	Buttons    [][]domain.Button
}

// SourceOf builds a LinkSource from an inbound message.
func SourceOf(msg domain.Message) LinkSource {
	return LinkSource{
		Text:       msg.Text,
		Entities:   msg.Entities,
		PreviewURL: msg.Media.PreviewURL,
		Buttons:    msg.Buttons,
	}
}

// LinkSet is a set of normalized links.
type LinkSet map[string]struct{}

func (s LinkSet) add(raw string) {
	if norm := links.Normalize(raw); norm != "" {
		s[norm] = struct{}{}
	}
}

// Sorted returns the links in lexical order.
func (s LinkSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}

	sort.Strings(out)

	return out
}

// ExtractLinks returns the normalized links of src.
func ExtractLinks(src LinkSource) LinkSet {
	found := make(LinkSet)
	collect(found, src)

	return found
}

func collect(found LinkSet, src LinkSource) {
	for _, u := range linkextract.ExtractURLs(src.Text) {
		found.add(u)
	}

	for _, span := range src.Entities {
		if span.IsHyperlink() && span.URL != "" {
			found.add(span.URL)
		}
	}

	if src.PreviewURL != "" {
		found.add(src.PreviewURL)
	}

	for _, row := range src.Buttons {
		for _, btn := range row {
			if btn.URL != "" {
				found.add(btn.URL)
			}
		}
	}
}

// Verdict is the outcome of a whitelist check.
type Verdict struct {
	Allowed bool
	// Disallowed lists the offending links in lexical order.
	Disallowed []string
}

// Check tests found against the whitelist. Whitelist entries are normalized
// before comparison; an empty found set always passes.
func Check(found LinkSet, whitelist []string) Verdict {
	return newAllowSet(whitelist).check(found)
}

type allowSet LinkSet

func newAllowSet(whitelist []string) allowSet {
	set := make(LinkSet, len(whitelist))
	for _, entry := range whitelist {
		set.add(entry)
	}

	return allowSet(set)
}

func (a allowSet) check(found LinkSet) Verdict {
	if len(found) == 0 {
		return Verdict{Allowed: true}
	}

	var disallowed []string

	for l := range found {
		if _, ok := a[l]; !ok {
			disallowed = append(disallowed, l)
		}
	}

	sort.Strings(disallowed)

	return Verdict{Allowed: len(disallowed) == 0, Disallowed: disallowed}
}

// Gate is a whitelist bound to one channel pair. It is immutable and safe for concurrent use.
type Gate struct {
	allowed allowSet
}

// NewGate normalizes the whitelist once.
func NewGate(whitelist []string) *Gate {
	return &Gate{allowed: newAllowSet(whitelist)}
}

// CheckMessage judges a single message.
func (g *Gate) CheckMessage(msg domain.Message) Verdict {
	return g.allowed.check(ExtractLinks(SourceOf(msg)))
}

// CheckAlbum judges an album on the links of every item; one bad link rejects the whole album.
func (g *Gate) CheckAlbum(album domain.Album) Verdict {
	found := make(LinkSet)
	for _, msg := range album.Messages {
		collect(found, SourceOf(msg))
	}

	return g.allowed.check(found)
}
