package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	relayerrors "github.com/lueurxax/telegram-channel-relay/internal/core/errors"
)

const (
	testSendText       = "SendText"
	testSendMedia      = "SendMedia"
	testSendFile       = "SendFile"
	testSendAlbum      = "SendAlbum"
	testSendAlbumFiles = "SendAlbumFiles"
	testDownload       = "Download"

	testTarget int64 = -1002
)

var errTransport = errors.New("transport failure")

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) SendText(ctx context.Context, target int64, caption Caption) error {
	return m.Called(ctx, target, caption).Error(0)
}

func (m *mockTransport) SendMedia(ctx context.Context, target int64, media domain.Media, caption Caption) error {
	return m.Called(ctx, target, media, caption).Error(0)
}

func (m *mockTransport) SendFile(ctx context.Context, target int64, file LocalFile, caption Caption) error {
	return m.Called(ctx, target, file, caption).Error(0)
}

func (m *mockTransport) SendAlbum(ctx context.Context, target int64, media []domain.Media, caption Caption) error {
	return m.Called(ctx, target, media, caption).Error(0)
}

func (m *mockTransport) SendAlbumFiles(ctx context.Context, target int64, files []LocalFile, caption Caption) error {
	return m.Called(ctx, target, files, caption).Error(0)
}

func (m *mockTransport) Download(ctx context.Context, media domain.Media, w io.Writer) error {
	args := m.Called(ctx, media, w)
	if args.Error(0) != nil {
		return fmt.Errorf("%w", args.Error(0))
	}

	_, err := io.WriteString(w, "bytes:"+media.FileName)

	return err
}

func newTestEngine(t *testing.T) (*Engine, *mockTransport, string) {
	t.Helper()

	dir := t.TempDir()
	transport := new(mockTransport)
	logger := zerolog.Nop()

	return New(transport, dir, &logger), transport, dir
}

func requireNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must be removed")
}

func photo(name string) domain.Media {
	return domain.Media{Kind: domain.MediaPhoto, FileName: name, Ref: name}
}

func localFileMatcher(name string) any {
	return mock.MatchedBy(func(f LocalFile) bool {
		data, err := os.ReadFile(f.Path)
		return err == nil && string(data) == "bytes:"+name && f.Media.FileName == name
	})
}

func TestDeliverMessage_Text(t *testing.T) {
	e, transport, _ := newTestEngine(t)
	ctx := context.Background()
	caption := Caption{Text: "hello", Entities: []domain.Span{{Offset: 0, Length: 5, Kind: domain.SpanBold}}}

	transport.On(testSendText, ctx, testTarget, caption).Return(nil)

	report := e.DeliverMessage(ctx, testTarget, caption, domain.Media{Kind: domain.MediaUnsupported, PreviewURL: "https://x.io"})

	assert.True(t, report.Delivered)
	assert.Equal(t, PathText, report.Path)
	assert.NoError(t, report.Err)
	transport.AssertExpectations(t)
}

func TestDeliverMessage_EmptyIsNotSent(t *testing.T) {
	e, transport, _ := newTestEngine(t)

	report := e.DeliverMessage(context.Background(), testTarget, Caption{Text: "  \n"}, domain.Media{})

	assert.False(t, report.Delivered)
	assert.ErrorIs(t, report.Err, relayerrors.ErrEmptyMessage)
	transport.AssertNotCalled(t, testSendText, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverMessage_MediaByReference(t *testing.T) {
	e, transport, _ := newTestEngine(t)
	ctx := context.Background()
	media := photo("a")

	transport.On(testSendMedia, ctx, testTarget, media, Caption{}).Return(nil)

	report := e.DeliverMessage(ctx, testTarget, Caption{Text: "   "}, media)

	assert.True(t, report.Delivered)
	assert.Equal(t, PathMedia, report.Path)
	transport.AssertExpectations(t)
}

func TestDeliverMessage_FallsBackToDownloadedFile(t *testing.T) {
	e, transport, dir := newTestEngine(t)
	ctx := context.Background()
	media := domain.Media{Kind: domain.MediaDocument, FileName: "report.pdf", Ref: 1}
	caption := Caption{Text: "doc"}

	transport.On(testSendMedia, ctx, testTarget, media, caption).Return(relayerrors.ErrMediaReferenceExpired)
	transport.On(testDownload, ctx, media, mock.Anything).Return(nil)
	transport.On(testSendFile, ctx, testTarget, localFileMatcher("report.pdf"), caption).Return(nil)

	report := e.DeliverMessage(ctx, testTarget, caption, media)

	assert.True(t, report.Delivered)
	assert.Equal(t, PathFile, report.Path)
	assert.ErrorIs(t, report.Err, relayerrors.ErrMediaReferenceExpired)
	assert.NotErrorIs(t, report.Err, relayerrors.ErrDeliveryFailed)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, PathMedia, report.Failed()[0].Path)
	transport.AssertExpectations(t)
	requireNoTempFiles(t, dir)
}

func TestDeliverMessage_TextFallback(t *testing.T) {
	e, transport, dir := newTestEngine(t)
	ctx := context.Background()
	media := photo("p")
	caption := Caption{Text: "caption survives"}

	transport.On(testSendMedia, ctx, testTarget, media, caption).Return(relayerrors.ErrMediaEmpty)
	transport.On(testDownload, ctx, media, mock.Anything).Return(nil)
	transport.On(testSendFile, ctx, testTarget, mock.Anything, caption).Return(errTransport)
	transport.On(testSendText, ctx, testTarget, caption).Return(nil)

	report := e.DeliverMessage(ctx, testTarget, caption, media)

	assert.True(t, report.Delivered)
	assert.Equal(t, PathTextFallback, report.Path)
	assert.Len(t, report.Attempts, 3)
	transport.AssertExpectations(t)
	requireNoTempFiles(t, dir)
}

func TestDeliverMessage_AllFailWithoutText(t *testing.T) {
	e, transport, dir := newTestEngine(t)
	ctx := context.Background()
	media := photo("p")

	transport.On(testSendMedia, ctx, testTarget, media, Caption{}).Return(relayerrors.ErrMediaEmpty)
	transport.On(testDownload, ctx, media, mock.Anything).Return(errTransport)

	report := e.DeliverMessage(ctx, testTarget, Caption{}, media)

	assert.False(t, report.Delivered)
	assert.Empty(t, report.Path)
	assert.Len(t, report.Attempts, 2)
	assert.ErrorIs(t, report.Err, relayerrors.ErrMediaEmpty)
	assert.ErrorIs(t, report.Err, errTransport)
	assert.ErrorIs(t, report.Err, relayerrors.ErrDeliveryFailed)
	transport.AssertNotCalled(t, testSendText, mock.Anything, mock.Anything, mock.Anything)
	requireNoTempFiles(t, dir)
}

func TestDeliverAlbum_ByReference(t *testing.T) {
	e, transport, _ := newTestEngine(t)
	ctx := context.Background()
	media := []domain.Media{photo("1"), photo("2")}
	caption := Caption{Text: "album"}

	transport.On(testSendAlbum, ctx, testTarget, media, caption).Return(nil)

	report := e.DeliverAlbum(ctx, testTarget, caption, media)

	assert.True(t, report.Delivered)
	assert.Equal(t, PathAlbum, report.Path)
	transport.AssertExpectations(t)
}

func TestDeliverAlbum_FilesSkipFailedItems(t *testing.T) {
	e, transport, dir := newTestEngine(t)
	ctx := context.Background()
	good, broken := photo("good"), photo("broken")
	preview := domain.Media{Kind: domain.MediaUnsupported, PreviewURL: "https://x.io"}
	media := []domain.Media{good, preview, broken}

	transport.On(testSendAlbum, ctx, testTarget, media, Caption{}).Return(errTransport)
	transport.On(testDownload, ctx, good, mock.Anything).Return(nil)
	transport.On(testDownload, ctx, broken, mock.Anything).Return(errTransport)
	transport.On(testSendAlbumFiles, ctx, testTarget, mock.MatchedBy(func(files []LocalFile) bool {
		if len(files) != 1 {
			return false
		}

		data, err := os.ReadFile(files[0].Path)

		return err == nil && string(data) == "bytes:good" && strings.HasSuffix(files[0].Path, photoExt)
	}), Caption{}).Return(nil)

	report := e.DeliverAlbum(ctx, testTarget, Caption{Text: ""}, media)

	assert.True(t, report.Delivered)
	assert.Equal(t, PathAlbumFiles, report.Path)
	transport.AssertExpectations(t)
	requireNoTempFiles(t, dir)
}

func TestDeliverAlbum_NothingDownloaded(t *testing.T) {
	e, transport, dir := newTestEngine(t)
	ctx := context.Background()
	media := []domain.Media{photo("x")}

	transport.On(testSendAlbum, ctx, testTarget, media, Caption{}).Return(errTransport)
	transport.On(testDownload, ctx, media[0], mock.Anything).Return(errTransport)

	report := e.DeliverAlbum(ctx, testTarget, Caption{}, media)

	assert.False(t, report.Delivered)
	assert.ErrorIs(t, report.Err, relayerrors.ErrNoMediaDownloaded)
	transport.AssertNotCalled(t, testSendAlbumFiles, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	requireNoTempFiles(t, dir)
}

func TestDeliverAlbum_Empty(t *testing.T) {
	e, _, _ := newTestEngine(t)

	report := e.DeliverAlbum(context.Background(), testTarget, Caption{Text: "x"}, nil)

	assert.False(t, report.Delivered)
	assert.ErrorIs(t, report.Err, relayerrors.ErrNoMedia)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", extensionFor(photo("")))
	assert.Equal(t, ".mp4", extensionFor(domain.Media{Kind: domain.MediaDocument, FileName: "clip.mp4"}))
	assert.Empty(t, extensionFor(domain.Media{Kind: domain.MediaDocument, FileName: "README"}))
	assert.Empty(t, extensionFor(domain.Media{Kind: domain.MediaDocument, FileName: "x.averyveryverylongext"}))
}
