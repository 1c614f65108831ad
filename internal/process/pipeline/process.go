package pipeline

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
	"github.com/lueurxax/telegram-channel-relay/internal/output/delivery"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/observability"
	"github.com/lueurxax/telegram-channel-relay/internal/process/filters"
	"github.com/lueurxax/telegram-channel-relay/internal/process/rewrite"
)

func (p *Pipeline) processMessage(ctx context.Context, task Task, logger *zerolog.Logger) string {
	msg := task.Message
	pair := task.Pair

	msgLogger := logger.With().Int(LogFieldMsgID, msg.ID).Logger()

	if msg.GroupedID != 0 {
		msgLogger.Debug().Int64(LogFieldGroupedID, msg.GroupedID).Msg("Skipped album item delivered as single message")

		return observability.OutcomeSkipped
	}

	if p.dedup.SeenMessage(msg.ChatID, msg.ID) {
		msgLogger.Info().Bool("edited", msg.Edited).Msg("Skipped duplicate message")

		return observability.OutcomeDuplicate
	}

	rules := p.rulesFor(pair)

	msgLogger.Info().Int64("chat_id", msg.ChatID).Msg("Incoming message")
	p.flood.Info().
		Str(LogFieldTaskID, task.ID).
		Int64("chat_id", msg.ChatID).
		Int(LogFieldMsgID, msg.ID).
		Str(LogFieldText, msg.Text).
		Msg("Processing message")

	if verdict := rules.gate.CheckMessage(*msg); !verdict.Allowed {
		p.reject(task, verdict, func(e *zerolog.Event) *zerolog.Event { return e.Int(LogFieldMsgID, msg.ID) })

		msgLogger.Info().Int(LogFieldCount, len(verdict.Disallowed)).Msg("Rejected message with disallowed links")

		return observability.OutcomeRejected
	}

	res := rules.engine.Apply(msg.Text, msg.Entities)
	logRewrite(&msgLogger, res.Stats)

	report := p.deliverer.DeliverMessage(ctx, pair.TargetID, delivery.Caption{Text: res.Text, Entities: res.Entities}, msg.Media)

	outcome := p.finish(&msgLogger, report, "message")
	if outcome == observability.OutcomeDelivered && res.Text != "" {
		p.content.Info().Str(LogFieldTaskID, task.ID).Str(LogFieldText, res.Text).Msg("Relayed content")
	}

	return outcome
}

func (p *Pipeline) processAlbum(ctx context.Context, task Task, logger *zerolog.Logger) string {
	album := task.Album
	pair := task.Pair
	ids := album.IDs()

	albumLogger := logger.With().Int64(LogFieldGroupedID, album.GroupedID).Ints(LogFieldAlbumIDs, ids).Logger()

	if p.dedup.SeenAlbum(album.ChatID, album.GroupedID, ids) {
		albumLogger.Info().Msg("Skipped duplicate album")

		return observability.OutcomeDuplicate
	}

	rules := p.rulesFor(pair)
	captionText, captionSpans := album.Caption()

	p.flood.Info().
		Str(LogFieldTaskID, task.ID).
		Int64("chat_id", album.ChatID).
		Int64(LogFieldGroupedID, album.GroupedID).
		Ints(LogFieldAlbumIDs, ids).
		Str(LogFieldText, captionText).
		Msg("Processing album")

	if verdict := rules.gate.CheckAlbum(*album); !verdict.Allowed {
		p.reject(task, verdict, func(e *zerolog.Event) *zerolog.Event { return e.Ints(LogFieldAlbumIDs, ids) })

		albumLogger.Info().Int(LogFieldCount, len(verdict.Disallowed)).Msg("Rejected album with disallowed links")

		return observability.OutcomeRejected
	}

	res := rules.engine.Apply(captionText, captionSpans)
	logRewrite(&albumLogger, res.Stats)

	media := album.Media()
	report := p.deliverer.DeliverAlbum(ctx, pair.TargetID, delivery.Caption{Text: res.Text, Entities: res.Entities}, media)

	albumLogger.Debug().Int(LogFieldCount, len(media)).Msg("Album media collected")

	outcome := p.finish(&albumLogger, report, "album")
	if outcome == observability.OutcomeDelivered && res.Text != "" {
		p.content.Info().Str(LogFieldTaskID, task.ID).Str(LogFieldText, res.Text).Msg("Relayed content")
	}

	return outcome
}

// reject writes one audit record per disallowed link.
func (p *Pipeline) reject(task Task, verdict filters.Verdict, withIDs func(*zerolog.Event) *zerolog.Event) {
	source := strconv.FormatInt(task.Pair.SourceID, 10)
	observability.WhitelistRejections.WithLabelValues(source).Inc()

	for _, link := range verdict.Disallowed {
		withIDs(p.audit.Info().
			Str(LogFieldTaskID, task.ID).
			Str(LogFieldLink, link).
			Int64(LogFieldSourceID, task.Pair.SourceID).
			Str("reason", filters.ReasonNotWhitelisted)).
			Msg("Disallowed link")
	}
}

func (p *Pipeline) finish(logger *zerolog.Logger, report delivery.Report, what string) string {
	for _, attempt := range report.Failed() {
		observability.DeliveryFailures.WithLabelValues(string(attempt.Path)).Inc()
	}

	if report.Delivered {
		observability.DeliveriesTotal.WithLabelValues(string(report.Path)).Inc()
		logger.Info().Str(LogFieldPath, string(report.Path)).Msgf("Forwarded %s", what)

		return observability.OutcomeDelivered
	}

	if errors.Is(report.Err, errors.ErrEmptyMessage) {
		logger.Warn().Msgf("Nothing to forward in %s", what)

		return observability.OutcomeEmpty
	}

	logger.Error().Err(report.Err).Msgf("Error forwarding %s", what)

	return observability.OutcomeFailed
}

func logRewrite(logger *zerolog.Logger, stats rewrite.Stats) {
	if stats == (rewrite.Stats{}) {
		return
	}

	logger.Debug().
		Int("hyperlink_names", stats.HyperlinkNames).
		Int("hyperlink_urls", stats.HyperlinkURLs).
		Int("text_links", stats.TextLinks).
		Int("names", stats.Names).
		Msg("Rewrote message")
}
