package domain

import "strings"

// SpanKind identifies a rich-text annotation type.
type SpanKind string

// Span kinds. SpanTextURL is the only hyperlink kind carrying a URL payload.
const (
	SpanBold        SpanKind = "bold"
	SpanItalic      SpanKind = "italic"
	SpanUnderline   SpanKind = "underline"
	SpanStrike      SpanKind = "strike"
	SpanCode        SpanKind = "code"
	SpanPre         SpanKind = "pre"
	SpanSpoiler     SpanKind = "spoiler"
	SpanBlockquote  SpanKind = "blockquote"
	SpanURL         SpanKind = "url"
	SpanTextURL     SpanKind = "text_url"
	SpanEmail       SpanKind = "email"
	SpanMention     SpanKind = "mention"
	SpanMentionName SpanKind = "mention_name"
	SpanHashtag     SpanKind = "hashtag"
	SpanCashtag     SpanKind = "cashtag"
	SpanBotCommand  SpanKind = "bot_command"
	SpanPhone       SpanKind = "phone"
	SpanBankCard    SpanKind = "bank_card"
	SpanCustomEmoji SpanKind = "custom_emoji"
)

// Span is a formatting annotation over a text range.
// Offset and Length are measured in UTF-16 code units.
type Span struct {
	Offset     int
	Length     int
	Kind       SpanKind
	URL        string // SpanTextURL
	Language   string // SpanPre
	UserID     int64  // SpanMentionName
	DocumentID int64  // SpanCustomEmoji
}

// End returns the exclusive end offset.
func (s Span) End() int {
	return s.Offset + s.Length
}

// IsHyperlink reports whether the span carries a target URL.
func (s Span) IsHyperlink() bool {
	return s.Kind == SpanTextURL
}

// CloneSpans returns an independent copy of spans.
func CloneSpans(spans []Span) []Span {
	if spans == nil {
		return nil
	}

	return append([]Span(nil), spans...)
}

// MediaKind is the typed media variant decided once at ingestion.
type MediaKind string

// Media kinds.
const (
	MediaNone        MediaKind = ""
	MediaPhoto       MediaKind = "photo"
	MediaDocument    MediaKind = "document"
	MediaUnsupported MediaKind = "unsupported"
)

// Media references an attachment without holding its bytes.
type Media struct {
	Kind MediaKind

	// PreviewURL is set for link previews (which are unsupported media).
	PreviewURL string

	MimeType string
	FileName string

	// Ref is an opaque transport handle; the core never inspects it.
	Ref any
}

// Supported reports whether the media can be re-sent or downloaded.
func (m Media) Supported() bool {
	return m.Kind == MediaPhoto || m.Kind == MediaDocument
}

// Present reports whether any media is attached, supported or not.
func (m Media) Present() bool {
	return m.Kind != MediaNone
}

// Button is a URL-carrying inline keyboard button.
type Button struct {
	Text string
	URL  string
}

// Message represents an inbound channel message.
type Message struct {
	ID        int
	ChatID    int64
	Text      string
	Entities  []Span
	Media     Media
	GroupedID int64
	Buttons   [][]Button
	Edited    bool
}

// Album is a batch of messages sharing one grouped id, delivered as one post.
type Album struct {
	GroupedID int64
	ChatID    int64
	Messages  []Message
}

// IDs returns the message ids of the batch in order.
func (a Album) IDs() []int {
	ids := make([]int, 0, len(a.Messages))
	for _, m := range a.Messages {
		ids = append(ids, m.ID)
	}

	return ids
}

// Caption returns the text and spans of the first message with non-blank text.
func (a Album) Caption() (string, []Span) {
	for _, m := range a.Messages {
		if strings.TrimSpace(m.Text) != "" {
			return m.Text, m.Entities
		}
	}

	return "", nil
}

// Media returns every attached media reference in original order.
func (a Album) Media() []Media {
	media := make([]Media, 0, len(a.Messages))

	for _, m := range a.Messages {
		if m.Media.Present() {
			media = append(media, m.Media)
		}
	}

	return media
}
