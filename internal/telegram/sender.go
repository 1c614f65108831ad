package telegram

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
	"github.com/lueurxax/telegram-channel-relay/internal/output/delivery"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/worker"
)

const (
	errTypeFloodWait  = "FLOOD_WAIT"
	errTypeMediaEmpty = "MEDIA_EMPTY"

	// maxFloodWait caps how long a single send will sleep on FLOOD_WAIT.
	maxFloodWait = 5 * time.Minute

	defaultSendRPS   = 2
	defaultSendBurst = 3
)

// Sender implements delivery.Transport over the raw MTProto API.
type Sender struct {
	api        *tg.Client
	peers      *PeerCache
	limiter    *rate.Limiter
	uploader   *uploader.Uploader
	downloader *downloader.Downloader
	logger     *zerolog.Logger
}

var _ delivery.Transport = (*Sender)(nil)

// NewSender paces every API call with a token bucket of rps and burst.
func NewSender(api *tg.Client, peers *PeerCache, rps float64, burst int, logger *zerolog.Logger) *Sender {
	if rps <= 0 {
		rps = defaultSendRPS
	}

	if burst <= 0 {
		burst = defaultSendBurst
	}

	return &Sender{
		api:        api,
		peers:      peers,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		uploader:   uploader.NewUploader(api),
		downloader: downloader.NewDownloader(),
		logger:     logger,
	}
}

func (s *Sender) SendText(ctx context.Context, target int64, caption delivery.Caption) error {
	peer, err := s.peers.Resolve(target)
	if err != nil {
		return err
	}

	return s.call(ctx, "send message", func(ctx context.Context) error {
		_, err := s.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  caption.Text,
			Entities: toTGEntities(caption.Entities),
			RandomID: rand.Int64(),
		})

		return err
	})
}

func (s *Sender) SendMedia(ctx context.Context, target int64, media domain.Media, caption delivery.Caption) error {
	ref, ok := refOf(media)
	if !ok {
		return errors.ErrNoMedia
	}

	return s.sendMedia(ctx, target, inputMedia(ref), caption)
}

func (s *Sender) SendFile(ctx context.Context, target int64, file delivery.LocalFile, caption delivery.Caption) error {
	media, err := s.uploadFile(ctx, file)
	if err != nil {
		return err
	}

	return s.sendMedia(ctx, target, media, caption)
}

func (s *Sender) sendMedia(ctx context.Context, target int64, media tg.InputMediaClass, caption delivery.Caption) error {
	peer, err := s.peers.Resolve(target)
	if err != nil {
		return err
	}

	return s.call(ctx, "send media", func(ctx context.Context) error {
		_, err := s.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:     peer,
			Media:    media,
			Message:  caption.Text,
			Entities: toTGEntities(caption.Entities),
			RandomID: rand.Int64(),
		})

		return err
	})
}

func (s *Sender) SendAlbum(ctx context.Context, target int64, media []domain.Media, caption delivery.Caption) error {
	items := make([]tg.InputMediaClass, 0, len(media))

	for _, m := range media {
		if ref, ok := refOf(m); ok {
			items = append(items, inputMedia(ref))
		}
	}

	return s.sendMultiMedia(ctx, target, items, caption)
}

func (s *Sender) SendAlbumFiles(ctx context.Context, target int64, files []delivery.LocalFile, caption delivery.Caption) error {
	peer, err := s.peers.Resolve(target)
	if err != nil {
		return err
	}

	items := make([]tg.InputMediaClass, 0, len(files))

	for _, f := range files {
		uploaded, err := s.uploadFile(ctx, f)
		if err != nil {
			return err
		}

		// Grouped sends only accept media already stored on the server.
		var stored tg.MessageMediaClass

		err = s.call(ctx, "upload album media", func(ctx context.Context) error {
			var err error

			stored, err = s.api.MessagesUploadMedia(ctx, &tg.MessagesUploadMediaRequest{Peer: peer, Media: uploaded})

			return err
		})
		if err != nil {
			return err
		}

		item, ok := storedInputMedia(stored)
		if !ok {
			return fmt.Errorf("upload album media %s: %w", f.Path, errors.ErrMediaEmpty)
		}

		items = append(items, item)
	}

	return s.sendMultiMedia(ctx, target, items, caption)
}

func (s *Sender) sendMultiMedia(ctx context.Context, target int64, items []tg.InputMediaClass, caption delivery.Caption) error {
	if len(items) == 0 {
		return errors.ErrNoMedia
	}

	peer, err := s.peers.Resolve(target)
	if err != nil {
		return err
	}

	multi := make([]tg.InputSingleMedia, len(items))
	for i, item := range items {
		multi[i] = tg.InputSingleMedia{Media: item, RandomID: rand.Int64()}
	}

	// The caption rides on the first item.
	multi[0].Message = caption.Text
	multi[0].Entities = toTGEntities(caption.Entities)

	return s.call(ctx, "send album", func(ctx context.Context) error {
		_, err := s.api.MessagesSendMultiMedia(ctx, &tg.MessagesSendMultiMediaRequest{
			Peer:       peer,
			MultiMedia: multi,
		})

		return err
	})
}

func (s *Sender) Download(ctx context.Context, media domain.Media, w io.Writer) error {
	ref, ok := refOf(media)
	if !ok {
		return errors.ErrNoMedia
	}

	loc, ok := fileLocation(ref)
	if !ok {
		return errors.ErrNoMedia
	}

	return s.call(ctx, "download", func(ctx context.Context) error {
		_, err := s.downloader.Download(s.api, loc).Stream(ctx, w)
		return err
	})
}

func (s *Sender) uploadFile(ctx context.Context, file delivery.LocalFile) (tg.InputMediaClass, error) {
	var uploaded tg.InputFileClass

	err := s.call(ctx, "upload", func(ctx context.Context) error {
		var err error

		uploaded, err = s.uploader.FromPath(ctx, file.Path)

		return err
	})
	if err != nil {
		return nil, err
	}

	if file.Media.Kind == domain.MediaPhoto {
		return &tg.InputMediaUploadedPhoto{File: uploaded}, nil
	}

	mime := file.Media.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}

	var attrs []tg.DocumentAttributeClass
	if file.Media.FileName != "" {
		attrs = append(attrs, &tg.DocumentAttributeFilename{FileName: file.Media.FileName})
	}

	return &tg.InputMediaUploadedDocument{File: uploaded, MimeType: mime, Attributes: attrs}, nil
}

// storedInputMedia turns an uploadMedia result into a re-sendable reference.
func storedInputMedia(media tg.MessageMediaClass) (tg.InputMediaClass, bool) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		if photo, ok := m.Photo.(*tg.Photo); ok {
			return inputMedia(mediaRef{photo: photo}), true
		}
	case *tg.MessageMediaDocument:
		if doc, ok := m.Document.(*tg.Document); ok {
			return inputMedia(mediaRef{document: doc}), true
		}
	}

	return nil, false
}

// call paces fn, retries it once after a FLOOD_WAIT, and maps RPC errors.
func (s *Sender) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", op, err)
	}

	err := fn(ctx)

	if wait, ok := floodWait(err); ok {
		s.logger.Warn().Dur("wait", wait).Str("op", op).Msg("flood wait")

		if err := worker.Wait(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit: %w", op, err)
		}

		err = fn(ctx)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", op, mapRPCError(err))
	}

	return nil
}

func floodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	rpcErr, ok := tgerr.As(err)
	if !ok || rpcErr.Type != errTypeFloodWait {
		return 0, false
	}

	wait := time.Duration(rpcErr.Argument) * time.Second
	if wait > maxFloodWait {
		wait = maxFloodWait
	}

	return wait, true
}

// mapRPCError tags media errors with the sentinels the delivery chain reports on.
func mapRPCError(err error) error {
	rpcErr, ok := tgerr.As(err)
	if !ok {
		return err
	}

	switch {
	case isFileReferenceExpired(rpcErr.Type):
		return fmt.Errorf("%w: %w", errors.ErrMediaReferenceExpired, err)
	case rpcErr.Type == errTypeMediaEmpty:
		return fmt.Errorf("%w: %w", errors.ErrMediaEmpty, err)
	default:
		return err
	}
}

// isFileReferenceExpired matches FILE_REFERENCE_EXPIRED and its per-item FILE_REFERENCE_<n>_EXPIRED variants.
func isFileReferenceExpired(errType string) bool {
	return strings.HasPrefix(errType, "FILE_REFERENCE_") && strings.HasSuffix(errType, "_EXPIRED")
}
