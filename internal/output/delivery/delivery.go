// Package delivery sends rewritten messages and albums to target chats.
//
// Each send runs an ordered chain of attempts and stops at the first success.
// Single messages with supported media try, in order:
//   - the media by reference
//   - a downloaded local copy
//   - the text alone, when it is not blank
//
// Albums try a grouped send by reference, then one grouped send of local
// copies of every item that downloaded.
package delivery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
)

// Path names the attempt that delivered a message.
type Path string

// Delivery paths.
const (
	PathText         Path = "text"
	PathMedia        Path = "media"
	PathFile         Path = "file"
	PathTextFallback Path = "text_fallback"
	PathAlbum        Path = "album"
	PathAlbumFiles   Path = "album_files"
)

const (
	logKeyPath   = "path"
	logKeyTarget = "target_id"
)

// Caption is outgoing text with its formatting spans.
type Caption struct {
	Text     string
	Entities []domain.Span
}

// Blank reports whether the caption has no visible text.
func (c Caption) Blank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// orNone drops blank captions so they are sent as no caption at all.
func (c Caption) orNone() Caption {
	if c.Blank() {
		return Caption{}
	}

	return c
}

// LocalFile is a downloaded copy of a media item.
type LocalFile struct {
	Path  string
	Media domain.Media
}

// Transport is the send/download port of the messaging network.
type Transport interface {
	SendText(ctx context.Context, target int64, caption Caption) error
	SendMedia(ctx context.Context, target int64, media domain.Media, caption Caption) error
	SendFile(ctx context.Context, target int64, file LocalFile, caption Caption) error
	SendAlbum(ctx context.Context, target int64, media []domain.Media, caption Caption) error
	SendAlbumFiles(ctx context.Context, target int64, files []LocalFile, caption Caption) error
	Download(ctx context.Context, media domain.Media, w io.Writer) error
}

// Attempt records one step of a delivery chain.
type Attempt struct {
	Path Path
	Err  error
}

// Report is the outcome of a delivery.
type Report struct {
	Delivered bool
	// Path is the attempt that succeeded; empty when none did.
	Path Path
	// Attempts lists every attempt made, in order.
	Attempts []Attempt
	// Err joins the errors of all failed attempts.
	Err error
}

// Failed returns the attempts that returned an error.
func (r Report) Failed() []Attempt {
	var failed []Attempt

	for _, a := range r.Attempts {
		if a.Err != nil {
			failed = append(failed, a)
		}
	}

	return failed
}

type step struct {
	path Path
	run  func(ctx context.Context) error
}

// Engine runs delivery chains against a Transport.
type Engine struct {
	transport Transport
	tempDir   string
	logger    *zerolog.Logger
}

// New creates an Engine. An empty tempDir means os.TempDir().
func New(transport Transport, tempDir string, logger *zerolog.Logger) *Engine {
	return &Engine{
		transport: transport,
		tempDir:   tempDir,
		logger:    logger,
	}
}

// DeliverMessage sends one message to target.
func (e *Engine) DeliverMessage(ctx context.Context, target int64, caption Caption, media domain.Media) Report {
	if !media.Supported() {
		if caption.Blank() {
			return Report{Err: fmt.Errorf("deliver to %d: %w", target, errors.ErrEmptyMessage)}
		}

		return e.run(ctx, target, []step{{
			path: PathText,
			run: func(ctx context.Context) error {
				return e.transport.SendText(ctx, target, caption)
			},
		}})
	}

	outgoing := caption.orNone()

	steps := []step{
		{
			path: PathMedia,
			run: func(ctx context.Context) error {
				return e.transport.SendMedia(ctx, target, media, outgoing)
			},
		},
		{
			path: PathFile,
			run: func(ctx context.Context) error {
				return e.sendDownloaded(ctx, target, media, outgoing)
			},
		},
	}

	if !caption.Blank() {
		steps = append(steps, step{
			path: PathTextFallback,
			run: func(ctx context.Context) error {
				return e.transport.SendText(ctx, target, caption)
			},
		})
	}

	return e.run(ctx, target, steps)
}

// DeliverAlbum sends a media group to target as one post.
func (e *Engine) DeliverAlbum(ctx context.Context, target int64, caption Caption, media []domain.Media) Report {
	if len(media) == 0 {
		return Report{Err: fmt.Errorf("deliver album to %d: %w", target, errors.ErrNoMedia)}
	}

	outgoing := caption.orNone()

	return e.run(ctx, target, []step{
		{
			path: PathAlbum,
			run: func(ctx context.Context) error {
				return e.transport.SendAlbum(ctx, target, media, outgoing)
			},
		},
		{
			path: PathAlbumFiles,
			run: func(ctx context.Context) error {
				return e.sendAlbumDownloaded(ctx, target, media, outgoing)
			},
		},
	})
}

func (e *Engine) run(ctx context.Context, target int64, steps []step) Report {
	var (
		report Report
		errs   []error
	)

	for _, s := range steps {
		err := s.run(ctx)
		report.Attempts = append(report.Attempts, Attempt{Path: s.path, Err: err})

		if err == nil {
			report.Delivered = true
			report.Path = s.path

			break
		}

		errs = append(errs, fmt.Errorf("%s: %w", s.path, err))

		e.logger.Warn().
			Err(err).
			Str(logKeyPath, string(s.path)).
			Int64(logKeyTarget, target).
			Msg("delivery attempt failed")
	}

	if len(errs) > 0 {
		if !report.Delivered {
			errs = append(errs, errors.ErrDeliveryFailed)
		}

		report.Err = errors.Join(errs...)
	}

	return report
}

func (e *Engine) sendDownloaded(ctx context.Context, target int64, media domain.Media, caption Caption) error {
	tmp := newTempFiles(e.tempDir, e.logger)
	defer tmp.release()

	path, err := tmp.download(ctx, e.transport, media)
	if err != nil {
		return err
	}

	if err := e.transport.SendFile(ctx, target, LocalFile{Path: path, Media: media}, caption); err != nil {
		return fmt.Errorf("send file: %w", err)
	}

	return nil
}

func (e *Engine) sendAlbumDownloaded(ctx context.Context, target int64, media []domain.Media, caption Caption) error {
	tmp := newTempFiles(e.tempDir, e.logger)
	defer tmp.release()

	files := make([]LocalFile, 0, len(media))

	for i, m := range media {
		if !m.Supported() {
			e.logger.Debug().Int("item", i).Str("kind", string(m.Kind)).Msg("album item has no downloadable media")
			continue
		}

		path, err := tmp.download(ctx, e.transport, m)
		if err != nil {
			e.logger.Warn().Err(err).Int("item", i).Msg("album item download failed")
			continue
		}

		files = append(files, LocalFile{Path: path, Media: m})
	}

	if len(files) == 0 {
		return errors.ErrNoMediaDownloaded
	}

	if err := e.transport.SendAlbumFiles(ctx, target, files, caption); err != nil {
		return fmt.Errorf("send album files: %w", err)
	}

	return nil
}
