// Package pipeline runs the relay: a bounded ingestion queue drained by a
// fixed worker pool. Each task passes deduplication, the pair's link
// whitelist, and the rewrite engine before it is handed to delivery.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
	"github.com/lueurxax/telegram-channel-relay/internal/output/delivery"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/observability"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/worker"
	"github.com/lueurxax/telegram-channel-relay/internal/process/filters"
	"github.com/lueurxax/telegram-channel-relay/internal/process/rewrite"
)

// Deduplicator is the check-and-mark store of relayed messages.
type Deduplicator interface {
	SeenMessage(chatID int64, id int) bool
	SeenAlbum(chatID, groupedID int64, ids []int) bool
	Len() (messages, groups int)
}

// Deliverer sends rewritten content to a target chat.
type Deliverer interface {
	DeliverMessage(ctx context.Context, target int64, caption delivery.Caption, media domain.Media) delivery.Report
	DeliverAlbum(ctx context.Context, target int64, caption delivery.Caption, media []domain.Media) delivery.Report
}

// Options configures a Pipeline.
type Options struct {
	Workers   int
	QueueSize int
	// Pairs are precompiled into per-source rules; tasks for other pairs compile on demand.
	Pairs []domain.ChannelPair
}

type pairRules struct {
	gate   *filters.Gate
	engine *rewrite.Engine
}

func compileRules(pair domain.ChannelPair) pairRules {
	return pairRules{
		gate:   filters.NewGate(pair.Whitelist),
		engine: rewrite.New(rewrite.RulesFor(pair)),
	}
}

type Pipeline struct {
	workers   int
	queue     chan Task
	dedup     Deduplicator
	deliverer Deliverer
	rules     map[int64]pairRules

	// mu guards closing queue against concurrent sends.
	mu        sync.RWMutex
	closed    bool
	stopping  chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	logger  *zerolog.Logger
	audit   zerolog.Logger
	content zerolog.Logger
	flood   zerolog.Logger
}

func New(opts Options, dedup Deduplicator, deliverer Deliverer, logger *zerolog.Logger) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	rules := make(map[int64]pairRules, len(opts.Pairs))
	for _, pair := range opts.Pairs {
		rules[pair.SourceID] = compileRules(pair)
	}

	return &Pipeline{
		workers:   workers,
		queue:     make(chan Task, queueSize),
		dedup:     dedup,
		deliverer: deliverer,
		rules:     rules,
		stopping:  make(chan struct{}),
		logger:    logger,
		audit:     logger.With().Str(LogFieldStream, StreamAudit).Logger(),
		content:   logger.With().Str(LogFieldStream, StreamContent).Logger(),
		flood:     logger.With().Str(LogFieldStream, StreamFlood).Logger(),
	}
}

// Enqueue pushes a task onto the queue. It blocks while the queue is full
// until there is room, ctx is done, or intake is closed.
func (p *Pipeline) Enqueue(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrQueueClosed
	}

	select {
	case p.queue <- task:
	case <-p.stopping:
		return errors.ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", task.ID, ctx.Err())
	}

	observability.TasksEnqueued.WithLabelValues(task.Kind()).Inc()
	observability.QueueDepth.Set(float64(len(p.queue)))

	return nil
}

// Run starts the workers and blocks until ctx is canceled and every queued
// task has been processed. Tasks run on a context detached from ctx, so
// in-flight deliveries are not interrupted by shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.Close()
	}()

	go func() {
		//nolint:errcheck // the loop only ends with ctx
		_ = worker.TickerLoop(ctx, worker.TickerConfig{
			Name:       "relay-gauges",
			Interval:   gaugeInterval,
			OnTick:     func(context.Context) { p.reportGauges() },
			RunOnStart: true,
			Logger:     p.logger,
		})
	}()

	err := worker.Pool(context.WithoutCancel(ctx), p.queue, worker.PoolConfig[Task]{
		Name:    "relay",
		Workers: p.workers,
		Handle:  p.process,
		OnPanic: func(task Task, _ any) {
			observability.TasksProcessed.WithLabelValues(task.Kind(), observability.OutcomePanic).Inc()
		},
		OnStart: func(context.Context) { p.running.Store(true) },
		OnStop:  func() { p.running.Store(false) },
		Logger:  p.logger,
	})
	if err != nil {
		return fmt.Errorf("relay workers: %w", err)
	}

	p.reportGauges()

	return nil
}

// Close stops intake. Queued tasks are still processed by Run.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.stopping)

		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
}

// Ready reports whether workers are running.
func (p *Pipeline) Ready() bool {
	return p.running.Load()
}

// Pending returns the number of queued tasks.
func (p *Pipeline) Pending() int {
	return len(p.queue)
}

func (p *Pipeline) reportGauges() {
	observability.QueueDepth.Set(float64(len(p.queue)))

	messages, groups := p.dedup.Len()
	observability.DedupEntries.WithLabelValues(observability.SetMessages).Set(float64(messages))
	observability.DedupEntries.WithLabelValues(observability.SetGroups).Set(float64(groups))
}

func (p *Pipeline) rulesFor(pair domain.ChannelPair) pairRules {
	if r, ok := p.rules[pair.SourceID]; ok {
		return r
	}

	return compileRules(pair)
}

func (p *Pipeline) process(ctx context.Context, task Task) {
	start := time.Now()
	kind := task.Kind()

	logger := p.logger.With().
		Str(LogFieldTaskID, task.ID).
		Str(LogFieldKind, kind).
		Int64(LogFieldSourceID, task.Pair.SourceID).
		Int64(LogFieldTargetID, task.Pair.TargetID).
		Logger()

	var outcome string

	switch {
	case task.Album != nil:
		outcome = p.processAlbum(ctx, task, &logger)
	case task.Message != nil:
		outcome = p.processMessage(ctx, task, &logger)
	default:
		logger.Error().Err(errors.ErrUnknownTask).Msg("dropping task")

		outcome = observability.OutcomeFailed
	}

	observability.TasksProcessed.WithLabelValues(kind, outcome).Inc()
	observability.TaskDurationSeconds.Observe(time.Since(start).Seconds())
	observability.QueueDepth.Set(float64(len(p.queue)))
}
