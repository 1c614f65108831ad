package telegram

import (
	"context"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/observability"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/worker"
	"github.com/lueurxax/telegram-channel-relay/internal/process/pipeline"
)

// Router resolves a source chat to its pair.
type Router interface {
	Resolve(chatID int64) (domain.ChannelPair, bool)
	Sources() []int64
	Targets() []int64
}

// TaskSink accepts relay tasks. Enqueue may block while the sink is full.
type TaskSink interface {
	Enqueue(ctx context.Context, task pipeline.Task) error
}

// UpdateHandler turns channel updates into pipeline tasks.
type UpdateHandler struct {
	router Router
	sink   TaskSink
	peers  *PeerCache
	albums *AlbumCollector
	logger *zerolog.Logger

	// ctx is used by album flushes, which run on timer goroutines.
	ctx context.Context //nolint:containedctx
}

func NewUpdateHandler(router Router, sink TaskSink, peers *PeerCache, albumWait time.Duration, logger *zerolog.Logger) *UpdateHandler {
	h := &UpdateHandler{
		router: router,
		sink:   sink,
		peers:  peers,
		logger: logger,
		ctx:    context.Background(),
	}

	h.albums = NewAlbumCollector(albumWait, h.flushAlbum)

	return h
}

// Register installs the handler on d.
func (h *UpdateHandler) Register(d *tg.UpdateDispatcher) {
	d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return h.handle(ctx, e, u.Message, false)
	})
	d.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		return h.handle(ctx, e, u.Message, true)
	})
	d.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return h.handle(ctx, e, u.Message, false)
	})
	d.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		return h.handle(ctx, e, u.Message, true)
	})
}

// bind sets the context album flushes enqueue with. It must be called before updates flow.
func (h *UpdateHandler) bind(ctx context.Context) {
	h.ctx = ctx
}

// Close flushes buffered albums.
func (h *UpdateHandler) Close() {
	h.albums.Close()
}

func (h *UpdateHandler) handle(ctx context.Context, e tg.Entities, raw tg.MessageClass, edited bool) error {
	defer worker.RecoverPanic(h.logger, "update handler")

	h.peers.LearnEntities(e)

	msg, ok := raw.(*tg.Message)
	if !ok {
		return nil
	}

	m, ok := convertMessage(msg, edited)
	if !ok {
		return nil
	}

	pair, ok := h.router.Resolve(m.ChatID)
	if !ok {
		h.logger.Debug().Int64("chat_id", m.ChatID).Int("msg_id", m.ID).Msg("update from unrouted chat")
		return nil
	}

	kind := observability.KindMessage
	if edited {
		kind = observability.KindEdit
	}

	observability.UpdatesReceived.WithLabelValues(kind).Inc()

	if m.GroupedID != 0 {
		if edited {
			h.logger.Debug().Int64("chat_id", m.ChatID).Int("msg_id", m.ID).Int64("grouped_id", m.GroupedID).
				Msg("dropping edit of album item")

			return nil
		}

		h.albums.Add(m)

		return nil
	}

	h.enqueue(ctx, pipeline.NewMessageTask(pair, m))

	return nil
}

func (h *UpdateHandler) flushAlbum(album domain.Album) {
	defer worker.RecoverPanic(h.logger, "album flush")

	pair, ok := h.router.Resolve(album.ChatID)
	if !ok {
		return
	}

	h.enqueue(h.ctx, pipeline.NewAlbumTask(pair, album))
}

func (h *UpdateHandler) enqueue(ctx context.Context, task pipeline.Task) {
	err := h.sink.Enqueue(ctx, task)
	if err == nil {
		return
	}

	if errors.Is(err, errors.ErrQueueClosed) {
		h.logger.Debug().Str("task_id", task.ID).Msg("queue closed, task dropped")
		return
	}

	h.logger.Warn().Err(err).Str("task_id", task.ID).Str("kind", task.Kind()).Msg("failed to enqueue task")
}
