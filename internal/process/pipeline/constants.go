package pipeline

import "time"

// Log field constants
const (
	LogFieldTaskID    = "task_id"
	LogFieldKind      = "kind"
	LogFieldSourceID  = "source_id"
	LogFieldTargetID  = "target_id"
	LogFieldMsgID     = "msg_id"
	LogFieldGroupedID = "grouped_id"
	LogFieldAlbumIDs  = "album_ids"
	LogFieldLink      = "link"
	LogFieldPath      = "path"
	LogFieldCount     = "count"
	LogFieldText      = "text"
	LogFieldStream    = "stream"
)

// Log stream names. Audit records disallowed links, content records relayed
// text, flood records every incoming payload.
const (
	StreamAudit   = "ads"
	StreamContent = "content"
	StreamFlood   = "flood"
)

// Defaults
const (
	DefaultWorkers   = 3
	DefaultQueueSize = 1000

	gaugeInterval = 5 * time.Second
)
