// Package rewrite transforms message text and its formatting spans under a
// pair's link mappings and display-name substitution.
//
// Rewriting runs in three ordered passes:
//
//   - Pass A: hyperlink spans get their visible name and target URL rewritten.
//   - Pass B: literal occurrences of mapped links are replaced across the text.
//   - Pass C: the display name is replaced outside hyperlink and bare-link spans.
//
// Passes A and B run only when the pair has link mappings. All text edits go
// through a single splice primitive that re-maps every span, so offsets stay
// valid against the new text after each pass.
package rewrite

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/links"
)

// Rules are the rewrite settings of one channel pair.
type Rules struct {
	Mappings   []domain.LinkMapping
	SourceName string
	TargetName string
}

// RulesFor extracts rewrite rules from a channel pair.
func RulesFor(pair domain.ChannelPair) Rules {
	return Rules{
		Mappings:   pair.LinkMappings,
		SourceName: pair.SourceName,
		TargetName: pair.TargetName,
	}
}

// Stats counts what a rewrite changed.
type Stats struct {
	HyperlinkNames int
	HyperlinkURLs  int
	TextLinks      int
	Names          int
}

// Result is the rewritten text and spans.
type Result struct {
	Text     string
	Entities []domain.Span
	Stats    Stats
}

type mapping struct {
	srcKey  string
	target  string
	pattern *regexp.Regexp
}

// Engine applies precompiled rules. It is immutable and safe for concurrent use.
type Engine struct {
	mappings   []mapping
	byKey      map[string]string
	sourceName string
	targetName string
}

// New compiles rules into an Engine. Mappings with an empty side are skipped.
func New(rules Rules) *Engine {
	e := &Engine{
		byKey:      make(map[string]string, len(rules.Mappings)),
		sourceName: rules.SourceName,
		targetName: rules.TargetName,
	}

	for _, m := range rules.Mappings {
		if m.Src == "" || m.Tgt == "" {
			continue
		}

		src := strings.TrimRight(m.Src, "/")
		key := links.Normalize(m.Src)
		target := strings.TrimRight(m.Tgt, "/")

		e.mappings = append(e.mappings, mapping{
			srcKey:  key,
			target:  target,
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(src) + `/?(?:\?[^\s#]*)?`),
		})
		e.byKey[key] = target
	}

	return e
}

// Apply is a convenience for New(rules).Apply(text, spans).
func Apply(text string, spans []domain.Span, rules Rules) Result {
	return New(rules).Apply(text, spans)
}

// Apply rewrites text and spans. The input slice is never modified.
func (e *Engine) Apply(text string, spans []domain.Span) Result {
	res := Result{Text: text, Entities: domain.CloneSpans(spans)}

	if len(e.mappings) > 0 {
		res = e.rewriteHyperlinks(res)
		res = e.replaceLinks(res)
	}

	return e.replaceName(res)
}

// rewriteHyperlinks is Pass A.
func (e *Engine) rewriteHyperlinks(in Result) Result {
	out := Result{Text: in.Text, Entities: domain.CloneSpans(in.Entities), Stats: in.Stats}
	if len(out.Entities) == 0 {
		return out
	}

	sort.SliceStable(out.Entities, func(i, j int) bool {
		return out.Entities[i].Offset < out.Entities[j].Offset
	})

	renames := e.sourceName != "" && e.targetName != "" && e.sourceName != e.targetName

	for i := range out.Entities {
		span := out.Entities[i]
		if !span.IsHyperlink() {
			continue
		}

		if renames && sliceUTF16(out.Text, span.Offset, span.End()) == e.sourceName {
			out.Text = spliceText(out.Text, out.Entities, span.Offset, span.End(), e.targetName)
			out.Stats.HyperlinkNames++
		}

		if target, ok := e.byKey[links.Normalize(span.URL)]; ok && target != span.URL {
			out.Entities[i].URL = target
			out.Stats.HyperlinkURLs++
		}
	}

	return out
}

// replaceLinks is Pass B.
func (e *Engine) replaceLinks(in Result) Result {
	out := Result{Text: in.Text, Entities: domain.CloneSpans(in.Entities), Stats: in.Stats}

	for _, m := range e.mappings {
		out.Text = replaceLiteral(out.Text, out.Entities, m, &out.Stats)

		for i := range out.Entities {
			span := &out.Entities[i]
			if span.IsHyperlink() && span.URL != m.target && links.Normalize(span.URL) == m.srcKey {
				span.URL = m.target
				out.Stats.HyperlinkURLs++
			}
		}
	}

	return out
}

// replaceLiteral substitutes every bounded occurrence of m in text, re-mapping spans.
func replaceLiteral(text string, spans []domain.Span, m mapping, stats *Stats) string {
	matches := m.pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	targetUnits := utf16Len(m.target)

	var sb strings.Builder

	sb.Grow(len(text))

	lastByte, lastUnit, shift := 0, 0, 0

	for _, match := range matches {
		if !atLinkBoundary(text, match[1]) {
			continue
		}

		start := lastUnit + utf16Len(text[lastByte:match[0]])
		end := start + utf16Len(text[match[0]:match[1]])

		remapSpans(spans, start+shift, end+shift, start+shift+targetUnits)

		sb.WriteString(text[lastByte:match[0]])
		sb.WriteString(m.target)

		shift += targetUnits - (end - start)
		lastByte, lastUnit = match[1], end
		stats.TextLinks++
	}

	sb.WriteString(text[lastByte:])

	return sb.String()
}

// atLinkBoundary reports whether the match ending at byte i is a whole link
// rather than the prefix of a longer one (e.g. /x inside /xyz or /x/y).
func atLinkBoundary(text string, i int) bool {
	if i >= len(text) {
		return true
	}

	r, size := utf8.DecodeRuneInString(text[i:])
	if r == '.' {
		next, _ := utf8.DecodeRuneInString(text[i+size:])

		return i+size >= len(text) || !continuesLink(next)
	}

	return !continuesLink(r)
}

func continuesLink(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '/'
}

// replaceName is Pass C. An empty target name deletes the source name.
func (e *Engine) replaceName(in Result) Result {
	out := Result{Text: in.Text, Entities: domain.CloneSpans(in.Entities), Stats: in.Stats}

	src, tgt := e.sourceName, e.targetName
	if src == "" || src == tgt || out.Text == "" {
		return out
	}

	pos := 0

	for pos < len(out.Text) {
		idx := strings.Index(out.Text[pos:], src)
		if idx < 0 {
			break
		}

		idx += pos
		start := utf16Len(out.Text[:idx])
		end := start + utf16Len(src)

		if overlapsProtected(out.Entities, start, end) {
			pos = idx + len(src)
			continue
		}

		out.Text = spliceText(out.Text, out.Entities, start, end, tgt)
		out.Stats.Names++
		pos = idx + len(tgt)
	}

	return out
}

// overlapsProtected reports whether [start, end) touches a hyperlink or bare-link span.
func overlapsProtected(spans []domain.Span, start, end int) bool {
	for _, s := range spans {
		if s.Kind != domain.SpanTextURL && s.Kind != domain.SpanURL {
			continue
		}

		if end > s.Offset && start < s.End() {
			return true
		}
	}

	return false
}
