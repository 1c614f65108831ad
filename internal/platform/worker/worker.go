// Package worker provides the background execution primitives of the relay:
// a fixed-size pool draining a channel, a ticker loop, and panic recovery.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldIndex  = "index"
)

// HandleFunc processes one item. It must not retain ctx beyond the call.
type HandleFunc[T any] func(ctx context.Context, item T)

// PoolConfig configures a fixed worker pool.
type PoolConfig[T any] struct {
	// Name identifies the pool for logging.
	Name string

	// Workers is the number of goroutines; values below 1 mean 1.
	Workers int

	// Handle is called for every item.
	Handle HandleFunc[T]

	// OnPanic is called after a panic in Handle was recovered.
	OnPanic func(item T, recovered any)

	// OnStart is called once before the workers start.
	OnStart func(ctx context.Context)

	// OnStop is called once after every worker returned.
	OnStop func()

	// Logger for the pool.
	Logger *zerolog.Logger
}

// Pool runs Workers goroutines that take items from items in FIFO order.
// It returns once items is closed and drained. ctx is handed to Handle;
// cancelling it does not stop the pool, closing items does.
func Pool[T any](ctx context.Context, items <-chan T, cfg PoolConfig[T]) error {
	if cfg.Handle == nil {
		return fmt.Errorf("worker pool %s: %w", cfg.Name, errNoHandler)
	}

	logger := getLogger(cfg.Logger)

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	logger.Info().Str(logFieldWorker, cfg.Name).Int("workers", workers).Msg("starting worker pool")

	runOnStart(ctx, cfg.OnStart)
	defer runOnStop(cfg.OnStop, logger, cfg.Name, "worker pool stopped")

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			workerLogger := logger.With().Str(logFieldWorker, cfg.Name).Int(logFieldIndex, i).Logger()

			for item := range items {
				handleOne(ctx, item, cfg, &workerLogger)
			}
		}()
	}

	wg.Wait()

	return nil
}

func handleOne[T any](ctx context.Context, item T, cfg PoolConfig[T], logger *zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, cfg.Name, r)

			if cfg.OnPanic != nil {
				cfg.OnPanic(item, r)
			}
		}
	}()

	cfg.Handle(ctx, item)
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logPanic(getLogger(logger), operation, r)
	}
}

func logPanic(logger *zerolog.Logger, operation string, r any) {
	logger.Error().
		Interface("panic", r).
		Str("operation", operation).
		Msg("recovered from panic")
}
