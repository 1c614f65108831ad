package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: "   ", want: ""},
		{name: "already canonical", in: "https://example.com/path", want: "https://example.com/path"},
		{name: "case and query", in: "HTTP://Example.com/Path/?q=1", want: "http://example.com/path"},
		{name: "fragment dropped", in: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "trailing slashes", in: "https://example.com///", want: "https://example.com"},
		{name: "host only", in: "https://Example.COM/", want: "https://example.com"},
		{name: "idn host", in: "https://пример.рф/Путь", want: "https://xn--e1afmkfd.xn--p1ai/путь"},
		{name: "unparsable", in: "http://[::1", want: ""},
		{name: "schemeless", in: "example.com/x", want: "://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	assert.Equal(t, Normalize("http://example.com/path"), Normalize("HTTP://Example.com/Path/?q=1"))
	assert.Equal(t, Normalize("https://t.me/chan/"), Normalize("https://T.ME/chan?x=1"))
	assert.Equal(t, Normalize("https://пример.рф"), Normalize("https://xn--e1afmkfd.xn--p1ai/"))
	assert.NotEqual(t, Normalize("https://a.io/x"), Normalize("https://a.io/y"))
}
