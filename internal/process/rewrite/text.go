package rewrite

import (
	"unicode/utf8"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
)

// surrogateThreshold is the first rune that needs a UTF-16 surrogate pair.
const surrogateThreshold = 0x10000

// runeUnits returns the number of UTF-16 code units needed for r.
func runeUnits(r rune) int {
	if r >= surrogateThreshold {
		return 2
	}

	return 1
}

// utf16Len returns the length of s in UTF-16 code units.
// Telegram counts entity offsets in UTF-16, not bytes or runes.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}

	return n
}

// byteIndex maps a UTF-16 offset to a byte index in s.
// Offsets inside a surrogate pair resolve to the start of that rune.
// Offsets past the end clamp to len(s).
func byteIndex(s string, offset int) int {
	if offset <= 0 {
		return 0
	}

	units := 0

	for i, r := range s {
		next := units + runeUnits(r)
		if next > offset {
			return i
		}

		units = next
		if units == offset {
			return i + utf8.RuneLen(r)
		}
	}

	return len(s)
}

// sliceUTF16 returns the substring of s covering UTF-16 range [start, end).
func sliceUTF16(s string, start, end int) string {
	if start >= end {
		return ""
	}

	return s[byteIndex(s, start):byteIndex(s, end)]
}

// spliceText replaces UTF-16 range [start, end) of text with repl and re-maps spans in place.
// It returns the new text.
func spliceText(text string, spans []domain.Span, start, end int, repl string) string {
	bs, be := byteIndex(text, start), byteIndex(text, end)
	remapSpans(spans, start, end, start+utf16Len(repl))

	return text[:bs] + repl + text[be:]
}

// remapSpans adjusts spans after UTF-16 range [start, end) became [start, newEnd).
// Spans before the range are untouched, spans after it shift, and spans
// overlapping it stretch or shrink to cover the replacement. Every span stays
// within the new text bounds.
func remapSpans(spans []domain.Span, start, end, newEnd int) {
	for i := range spans {
		offset := mapPoint(spans[i].Offset, start, end, newEnd, false)
		stop := mapPoint(spans[i].End(), start, end, newEnd, true)

		if stop < offset {
			stop = offset
		}

		spans[i].Offset = offset
		spans[i].Length = stop - offset
	}
}

func mapPoint(p, start, end, newEnd int, isEnd bool) int {
	switch {
	case p <= start:
		return p
	case p >= end:
		return p + newEnd - end
	case isEnd:
		return newEnd
	default:
		return start
	}
}
