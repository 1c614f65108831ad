package domain

// channelIDShift offsets bare channel ids into the marked "-100…" chat id space.
const channelIDShift = 1_000_000_000_000

// LinkMapping rewrites one source link to a target link.
type LinkMapping struct {
	Src string `yaml:"src"`
	Tgt string `yaml:"tgt"`
}

// ChannelPair represents a configured source-to-target relay with its rewrite rules.
// Pairs are immutable after load and shared read-only across workers.
type ChannelPair struct {
	SourceID     int64         `yaml:"source_id"`
	TargetID     int64         `yaml:"target_id"`
	SourceName   string        `yaml:"source_name"`
	TargetName   string        `yaml:"target_name"`
	LinkMappings []LinkMapping `yaml:"link_mappings"`
	Whitelist    []string      `yaml:"white_list"`
}

// ChannelChatID converts a bare channel id to its marked chat id (-100…).
func ChannelChatID(channelID int64) int64 {
	return -(channelIDShift + channelID)
}
