package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
)

// LoadPairs reads the channel pairs file. The file is a list of pairs in JSON
// or YAML; JSON is a subset of YAML so both parse with the same decoder.
func LoadPairs(path string) ([]domain.ChannelPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pairs file: %w", err)
	}

	return ParsePairs(data)
}

// ParsePairs decodes pairs and drops link mappings with an empty side.
func ParsePairs(data []byte) ([]domain.ChannelPair, error) {
	var pairs []domain.ChannelPair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parsing pairs file: %w", err)
	}

	if len(pairs) == 0 {
		return nil, errors.ErrNoPairs
	}

	for i := range pairs {
		pairs[i].LinkMappings = cleanMappings(pairs[i].LinkMappings)
		pairs[i].Whitelist = cleanWhitelist(pairs[i].Whitelist)
	}

	return pairs, nil
}

func cleanMappings(in []domain.LinkMapping) []domain.LinkMapping {
	out := in[:0]

	for _, m := range in {
		m.Src, m.Tgt = strings.TrimSpace(m.Src), strings.TrimSpace(m.Tgt)
		if m.Src == "" || m.Tgt == "" {
			continue
		}

		out = append(out, m)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

func cleanWhitelist(in []string) []string {
	out := in[:0]

	for _, w := range in {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}
