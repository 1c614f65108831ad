// Package links provides link canonicalization shared by the whitelist gate
// and the rewrite engine.
package links

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const schemeSeparator = "://"

var lower = cases.Lower(language.Und)

// Normalize canonicalizes a link to scheme://host/path for equality checks.
// Query, fragment and trailing slashes are dropped and the result is lower-cased.
// Empty or unparsable input yields "".
func Normalize(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(parsed.Scheme)
	sb.WriteString(schemeSeparator)
	sb.WriteString(asciiHost(parsed.Host))
	sb.WriteString(parsed.Path)

	return lower.String(strings.TrimRight(sb.String(), "/"))
}

// asciiHost converts internationalized hosts to punycode so both spellings compare equal.
func asciiHost(host string) string {
	if host == "" {
		return ""
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}

	return ascii
}
