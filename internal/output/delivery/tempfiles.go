package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
)

const (
	tempPrefix   = "relay-"
	photoExt     = ".jpg"
	maxExtLength = 10
)

// tempFiles owns downloaded copies until release removes them.
type tempFiles struct {
	dir    string
	paths  []string
	logger *zerolog.Logger
}

func newTempFiles(dir string, logger *zerolog.Logger) *tempFiles {
	return &tempFiles{dir: dir, logger: logger}
}

// download writes media to a new temp file and returns its path.
// The file is tracked for release even when the download fails.
func (t *tempFiles) download(ctx context.Context, transport Transport, media domain.Media) (string, error) {
	f, err := os.CreateTemp(t.dir, tempPrefix+"*"+extensionFor(media))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	t.paths = append(t.paths, f.Name())

	if err := transport.Download(ctx, media, f); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("download media: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), nil
}

func (t *tempFiles) release() {
	for _, p := range t.paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			t.logger.Warn().Err(err).Str("file", p).Msg("failed to remove temp file")
		}
	}

	t.paths = nil
}

// extensionFor returns the temp file suffix for media.
func extensionFor(media domain.Media) string {
	if media.Kind == domain.MediaPhoto {
		return photoExt
	}

	ext := filepath.Ext(media.FileName)
	if ext == "" || len(ext) > maxExtLength || strings.ContainsAny(ext, `/\*`) {
		return ""
	}

	return ext
}
