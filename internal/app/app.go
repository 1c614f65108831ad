// Package app wires the relay together and owns its run lifecycle.
//
// Startup order is: pairs file, router, dedup store, telegram session,
// delivery engine, pipeline, health server. On shutdown the session flushes
// buffered albums and intake stops, queued tasks drain over the
// still-connected session, and then the session is closed. SHUTDOWN_TIMEOUT
// bounds the drain.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	coreerrors "github.com/lueurxax/telegram-channel-relay/internal/core/errors"
	"github.com/lueurxax/telegram-channel-relay/internal/output/delivery"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/config"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/observability"
	"github.com/lueurxax/telegram-channel-relay/internal/platform/worker"
	"github.com/lueurxax/telegram-channel-relay/internal/process/dedup"
	"github.com/lueurxax/telegram-channel-relay/internal/process/pipeline"
	"github.com/lueurxax/telegram-channel-relay/internal/process/router"
	"github.com/lueurxax/telegram-channel-relay/internal/telegram"
)

const logFieldPairs = "pairs"

// App holds the process configuration.
type App struct {
	cfg    *config.Config
	logger *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, logger *zerolog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// enqueueFunc adapts a function to telegram.TaskSink.
type enqueueFunc func(ctx context.Context, task pipeline.Task) error

func (f enqueueFunc) Enqueue(ctx context.Context, task pipeline.Task) error {
	return f(ctx, task)
}

// Run relays until ctx is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	pairs, err := config.LoadPairs(a.cfg.ChannelsFile)
	if err != nil {
		return err
	}

	routes, err := router.New(pairs)
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	a.logger.Info().Int(logFieldPairs, routes.Len()).Str("file", a.cfg.ChannelsFile).Msg("Loaded channel pairs")

	store := dedup.New(a.cfg.DedupMaxMessages, a.cfg.DedupMaxGroups)

	// The session hands updates to the pipeline, and the pipeline delivers over the session.
	var relay *pipeline.Pipeline

	session := telegram.New(a.cfg, routes, enqueueFunc(func(ctx context.Context, task pipeline.Task) error {
		return relay.Enqueue(ctx, task)
	}), a.logger)

	engine := delivery.New(session.Sender(), a.cfg.MediaTempDir, a.logger)

	relay = pipeline.New(pipeline.Options{
		Workers:   a.cfg.WorkerCount,
		QueueSize: a.cfg.QueueSize,
		Pairs:     routes.Pairs(),
	}, store, engine, a.logger)

	err = a.run(ctx, session, relay)

	stats := store.Stats()
	a.logger.Info().
		Int("messages", stats.Messages).
		Int("groups", stats.Groups).
		Int("message_resets", stats.MessageResets).
		Int("group_resets", stats.GroupResets).
		Msg("Relay stopped")

	return err
}

type readiness interface {
	Ready() bool
}

type sessionRunner interface {
	readiness
	Run(ctx context.Context, started func(ctx context.Context)) error
	CloseIntake()
}

type relayRunner interface {
	readiness
	Run(ctx context.Context) error
}

func (a *App) run(ctx context.Context, sess sessionRunner, relay relayRunner) error {
	g, gctx := errgroup.WithContext(ctx)

	// The session outlives intake so queued tasks can still be delivered.
	sessionCtx, stopSession := context.WithCancel(context.WithoutCancel(gctx))
	defer stopSession()

	// The pipeline closes its queue only after the session has flushed buffered albums.
	relayCtx, stopRelay := context.WithCancel(context.WithoutCancel(gctx))
	defer stopRelay()

	g.Go(func() error {
		defer stopSession()

		err := sess.Run(sessionCtx, func(context.Context) {
			a.logger.Info().Msg("Relay is running")
		})
		if err != nil && sessionCtx.Err() == nil {
			return fmt.Errorf("telegram session: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		defer stopSession()

		if err := relay.Run(relayCtx); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}

		a.logger.Info().Msg("Pipeline drained")

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		sess.CloseIntake()
		stopRelay()

		if err := worker.Wait(sessionCtx, a.cfg.ShutdownTimeout); err == nil {
			a.logger.Warn().Dur("timeout", a.cfg.ShutdownTimeout).Msg("shutdown timeout reached, closing session")
			stopSession()
		}

		return nil
	})

	if a.cfg.HealthPort > 0 {
		srv := observability.NewServer(a.cfg.HealthPort, readinessCheck(sess, relay), a.logger)

		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("health server start: %w", err)
			}

			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func readinessCheck(sess, relay readiness) observability.ReadinessFunc {
	return func(context.Context) error {
		if !sess.Ready() {
			return coreerrors.ErrTransportNotReady
		}

		if !relay.Ready() {
			return coreerrors.ErrPipelineNotRunning
		}

		return nil
	}
}
