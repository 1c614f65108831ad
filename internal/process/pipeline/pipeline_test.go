package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
	"github.com/lueurxax/telegram-channel-relay/internal/output/delivery"
	"github.com/lueurxax/telegram-channel-relay/internal/process/dedup"
)

const (
	testDeliverMessage = "DeliverMessage"
	testDeliverAlbum   = "DeliverAlbum"

	testSource int64 = -1001
	testTarget int64 = -1002
)

var (
	delivered = delivery.Report{Delivered: true, Path: delivery.PathText}
	testPair  = domain.ChannelPair{
		SourceID:     testSource,
		TargetID:     testTarget,
		SourceName:   "OldName",
		TargetName:   "NewName",
		LinkMappings: []domain.LinkMapping{{Src: "https://old.io", Tgt: "https://new.io"}},
		Whitelist:    []string{"https://old.io", "https://ok.io"},
	}
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) DeliverMessage(ctx context.Context, target int64, caption delivery.Caption, media domain.Media) delivery.Report {
	args := m.Called(ctx, target, caption, media)
	report, _ := args.Get(0).(delivery.Report)

	return report
}

func (m *mockDeliverer) DeliverAlbum(ctx context.Context, target int64, caption delivery.Caption, media []domain.Media) delivery.Report {
	args := m.Called(ctx, target, caption, media)
	report, _ := args.Get(0).(delivery.Report)

	return report
}

func newTestPipeline(workers, queueSize int) (*Pipeline, *mockDeliverer) {
	logger := zerolog.Nop()
	deliverer := new(mockDeliverer)
	p := New(Options{Workers: workers, QueueSize: queueSize, Pairs: []domain.ChannelPair{testPair}}, dedup.New(0, 0), deliverer, &logger)

	return p, deliverer
}

// runTasks enqueues tasks into a running pipeline, then shuts it down and waits for the drain.
func runTasks(t *testing.T, p *Pipeline, tasks ...Task) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- p.Run(ctx) }()

	for _, task := range tasks {
		require.NoError(t, p.Enqueue(context.Background(), task))
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain")
	}
}

func textMessage(id int, text string) domain.Message {
	return domain.Message{ID: id, ChatID: testSource, Text: text}
}

func TestPipeline_RewritesAndDelivers(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	msg := textMessage(1, "OldName: https://old.io/?x=1")
	msg.Entities = []domain.Span{{Offset: 0, Length: 7, Kind: domain.SpanBold}}

	want := delivery.Caption{
		Text:     "NewName: https://new.io",
		Entities: []domain.Span{{Offset: 0, Length: 7, Kind: domain.SpanBold}},
	}
	deliverer.On(testDeliverMessage, mock.Anything, testTarget, want, domain.Media{}).Return(delivered).Once()

	runTasks(t, p, NewMessageTask(testPair, msg))

	deliverer.AssertExpectations(t)
}

func TestPipeline_DuplicateDeliveredOnce(t *testing.T) {
	p, deliverer := newTestPipeline(3, 10)

	msg := textMessage(7, "hello")

	deliverer.On(testDeliverMessage, mock.Anything, testTarget, delivery.Caption{Text: "hello"}, domain.Media{}).Return(delivered).Once()

	runTasks(t, p,
		NewMessageTask(testPair, msg),
		NewMessageTask(testPair, msg),
		NewMessageTask(testPair, msg),
	)

	deliverer.AssertNumberOfCalls(t, testDeliverMessage, 1)
}

func TestPipeline_EditOfRelayedMessageIsDuplicate(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	msg := textMessage(7, "hello")
	edit := msg
	edit.Edited = true
	edit.Text = "hello, edited"

	deliverer.On(testDeliverMessage, mock.Anything, testTarget, delivery.Caption{Text: "hello"}, domain.Media{}).Return(delivered).Once()

	runTasks(t, p, NewMessageTask(testPair, msg), NewMessageTask(testPair, edit))

	deliverer.AssertNumberOfCalls(t, testDeliverMessage, 1)
}

func TestPipeline_WhitelistRejects(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	spam := textMessage(1, "buy now https://spam.io")
	button := textMessage(2, "fine text")
	button.Buttons = [][]domain.Button{{{Text: "shop", URL: "https://shop.io"}}}

	runTasks(t, p, NewMessageTask(testPair, spam), NewMessageTask(testPair, button))

	deliverer.AssertNotCalled(t, testDeliverMessage, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_SkipsGroupedSingleMessage(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	msg := textMessage(1, "part of an album")
	msg.GroupedID = 99

	runTasks(t, p, NewMessageTask(testPair, msg))

	deliverer.AssertNotCalled(t, testDeliverMessage, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_AlbumCaptionFromSecondItem(t *testing.T) {
	p, deliverer := newTestPipeline(2, 10)

	first := domain.Media{Kind: domain.MediaPhoto, Ref: "p1"}
	second := domain.Media{Kind: domain.MediaDocument, Ref: "d2", FileName: "a.pdf"}
	spans := []domain.Span{{Offset: 4, Length: 7, Kind: domain.SpanItalic}}

	album := domain.Album{
		GroupedID: 55,
		ChatID:    testSource,
		Messages: []domain.Message{
			{ID: 10, ChatID: testSource, GroupedID: 55, Text: "  ", Media: first},
			{ID: 11, ChatID: testSource, GroupedID: 55, Text: "see OldName", Entities: spans, Media: second},
		},
	}

	deliverer.On(testDeliverAlbum, mock.Anything, testTarget,
		delivery.Caption{Text: "see NewName", Entities: spans},
		[]domain.Media{first, second},
	).Return(delivery.Report{Delivered: true, Path: delivery.PathAlbum}).Once()

	runTasks(t, p, NewAlbumTask(testPair, album), NewAlbumTask(testPair, album))

	deliverer.AssertExpectations(t)
	deliverer.AssertNumberOfCalls(t, testDeliverAlbum, 1)
}

func TestPipeline_AlbumRejectedByAnyItem(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	album := domain.Album{
		GroupedID: 56,
		ChatID:    testSource,
		Messages: []domain.Message{
			{ID: 20, Text: "fine https://ok.io", Media: domain.Media{Kind: domain.MediaPhoto}},
			{ID: 21, Media: domain.Media{Kind: domain.MediaUnsupported, PreviewURL: "https://ads.io"}},
		},
	}

	runTasks(t, p, NewAlbumTask(testPair, album))

	deliverer.AssertNotCalled(t, testDeliverAlbum, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_SurvivesPanickingTask(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	deliverer.On(testDeliverMessage, mock.Anything, testTarget, delivery.Caption{Text: "first"}, domain.Media{}).Panic("boom").Once()
	deliverer.On(testDeliverMessage, mock.Anything, testTarget, delivery.Caption{Text: "second"}, domain.Media{}).Return(delivered).Once()

	runTasks(t, p, NewMessageTask(testPair, textMessage(1, "first")), NewMessageTask(testPair, textMessage(2, "second")))

	deliverer.AssertExpectations(t)
}

func TestPipeline_FailedDeliveryIsDropped(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	deliverer.On(testDeliverMessage, mock.Anything, testTarget, delivery.Caption{Text: "x"}, domain.Media{}).
		Return(delivery.Report{Err: errors.ErrDeliveryFailed}).Once()

	runTasks(t, p, NewMessageTask(testPair, textMessage(1, "x")), NewMessageTask(testPair, textMessage(1, "x")))

	deliverer.AssertNumberOfCalls(t, testDeliverMessage, 1)
}

func TestPipeline_CompilesRulesForUnlistedPair(t *testing.T) {
	p, deliverer := newTestPipeline(1, 10)

	other := domain.ChannelPair{SourceID: -1010, TargetID: -1020, SourceName: "A", TargetName: "B"}
	msg := domain.Message{ID: 1, ChatID: -1010, Text: "A says hi"}

	deliverer.On(testDeliverMessage, mock.Anything, int64(-1020), delivery.Caption{Text: "B says hi"}, domain.Media{}).Return(delivered).Once()

	runTasks(t, p, NewMessageTask(other, msg))

	deliverer.AssertExpectations(t)
}

func TestEnqueue_BlocksWhenFull(t *testing.T) {
	p, _ := newTestPipeline(1, 1)

	require.NoError(t, p.Enqueue(context.Background(), NewMessageTask(testPair, textMessage(1, "a"))))
	assert.Equal(t, 1, p.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Enqueue(ctx, NewMessageTask(testPair, textMessage(2, "b")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueue_UnblocksOnClose(t *testing.T) {
	p, _ := newTestPipeline(1, 1)

	require.NoError(t, p.Enqueue(context.Background(), NewMessageTask(testPair, textMessage(1, "a"))))

	result := make(chan error, 1)

	go func() {
		result <- p.Enqueue(context.Background(), NewMessageTask(testPair, textMessage(2, "b")))
	}()

	time.Sleep(10 * time.Millisecond)
	p.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errors.ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue stayed blocked after close")
	}

	assert.ErrorIs(t, p.Enqueue(context.Background(), NewMessageTask(testPair, textMessage(3, "c"))), errors.ErrQueueClosed)
}

func TestPipeline_ReadyWhileWorkersRun(t *testing.T) {
	p, _ := newTestPipeline(2, 1)
	assert.False(t, p.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, p.Ready, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, p.Ready())
}

func TestTaskKind(t *testing.T) {
	msg := textMessage(1, "x")
	assert.Equal(t, "message", NewMessageTask(testPair, msg).Kind())

	msg.Edited = true
	assert.Equal(t, "edit", NewMessageTask(testPair, msg).Kind())

	assert.Equal(t, "album", NewAlbumTask(testPair, domain.Album{}).Kind())
	assert.Equal(t, "unknown", Task{}.Kind())

	assert.NotEqual(t, NewMessageTask(testPair, msg).ID, NewMessageTask(testPair, msg).ID)
}
