package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
)

func TestExtractLinks(t *testing.T) {
	src := LinkSource{
		Text: "read https://A.io/x/?utm=1, then http://b.io.",
		Entities: []domain.Span{
			{Offset: 0, Length: 4, Kind: domain.SpanTextURL, URL: "https://c.io/Page"},
			{Offset: 0, Length: 4, Kind: domain.SpanBold},
			{Offset: 5, Length: 4, Kind: domain.SpanTextURL},
		},
		PreviewURL: "https://preview.io/",
		Buttons: [][]domain.Button{
			{{Text: "go", URL: "https://btn.io"}, {Text: "callback"}},
			{{Text: "again", URL: "https://a.io/x"}},
		},
	}

	got := ExtractLinks(src)

	assert.Equal(t, []string{
		"http://b.io",
		"https://a.io/x",
		"https://btn.io",
		"https://c.io/page",
		"https://preview.io",
	}, got.Sorted())
}

func TestExtractLinks_Empty(t *testing.T) {
	assert.Empty(t, ExtractLinks(LinkSource{}))
	assert.Empty(t, ExtractLinks(LinkSource{Text: "no links here"}))
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		whitelist []string
		want      Verdict
	}{
		{
			name: "no links pass without whitelist",
			text: "plain text",
			want: Verdict{Allowed: true},
		},
		{
			name:      "whitelisted after normalization",
			text:      "see HTTPS://T.me/Chan/?start=1",
			whitelist: []string{"https://t.me/chan"},
			want:      Verdict{Allowed: true},
		},
		{
			name: "empty whitelist rejects any link",
			text: "see https://t.me/chan",
			want: Verdict{Disallowed: []string{"https://t.me/chan"}},
		},
		{
			name:      "one bad link rejects",
			text:      "https://ok.io and https://spam.io and https://ads.io",
			whitelist: []string{"https://ok.io/"},
			want:      Verdict{Disallowed: []string{"https://ads.io", "https://spam.io"}},
		},
		{
			name:      "blank whitelist entries ignored",
			text:      "https://x.io",
			whitelist: []string{"", "   "},
			want:      Verdict{Disallowed: []string{"https://x.io"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(ExtractLinks(LinkSource{Text: tt.text}), tt.whitelist)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_CheckMessage(t *testing.T) {
	gate := NewGate([]string{"https://allowed.io"})

	ok := gate.CheckMessage(domain.Message{
		Text:  "hi",
		Media: domain.Media{Kind: domain.MediaUnsupported, PreviewURL: "https://allowed.io/"},
	})
	assert.True(t, ok.Allowed)

	bad := gate.CheckMessage(domain.Message{
		Text:    "hi",
		Buttons: [][]domain.Button{{{Text: "buy", URL: "https://shop.io/deal"}}},
	})
	assert.False(t, bad.Allowed)
	assert.Equal(t, []string{"https://shop.io/deal"}, bad.Disallowed)
}

func TestGate_CheckAlbumAggregatesItems(t *testing.T) {
	gate := NewGate([]string{"https://allowed.io"})

	album := domain.Album{
		GroupedID: 7,
		Messages: []domain.Message{
			{ID: 1, Text: "caption https://allowed.io"},
			{ID: 2},
			{ID: 3, Entities: []domain.Span{{Kind: domain.SpanTextURL, Length: 1, URL: "https://bad.io"}}},
		},
	}

	got := gate.CheckAlbum(album)

	assert.False(t, got.Allowed)
	assert.Equal(t, []string{"https://bad.io"}, got.Disallowed)

	album.Messages = album.Messages[:2]
	assert.True(t, gate.CheckAlbum(album).Allowed)
}
