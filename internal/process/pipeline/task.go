package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/observability"
)

// Task is one unit of relay work: a single message or an album, with the pair it belongs to.
// Exactly one of Message and Album is set.
type Task struct {
	ID         string
	Pair       domain.ChannelPair
	Message    *domain.Message
	Album      *domain.Album
	EnqueuedAt time.Time
}

// NewMessageTask wraps a single (possibly edited) message.
func NewMessageTask(pair domain.ChannelPair, msg domain.Message) Task {
	return Task{ID: uuid.NewString(), Pair: pair, Message: &msg, EnqueuedAt: time.Now()}
}

// NewAlbumTask wraps a collected album.
func NewAlbumTask(pair domain.ChannelPair, album domain.Album) Task {
	return Task{ID: uuid.NewString(), Pair: pair, Album: &album, EnqueuedAt: time.Now()}
}

// Kind returns the metric label of the task.
func (t Task) Kind() string {
	switch {
	case t.Album != nil:
		return observability.KindAlbum
	case t.Message != nil && t.Message.Edited:
		return observability.KindEdit
	case t.Message != nil:
		return observability.KindMessage
	default:
		return "unknown"
	}
}
