package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/settlement/internal/bootstrap"
	infraRedis "github.com/cassiomorais/settlement/internal/infrastructure/redis"
	"github.com/cassiomorais/settlement/internal/repository/postgres"
	"github.com/cassiomorais/settlement/internal/service"
	"github.com/cassiomorais/settlement/pkg/retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "settlement-worker", "settlement_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	memberRepo := postgres.NewMemberRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)

	// --- Services ---
	queryRetry := retry.Config{
		MaxAttempts:  app.Config.Order.QueryMaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
	settlementSvc := service.NewSettlementService(
		orderRepo, memberRepo, outboxRepo, txManager, app.Gateway, app.Metrics, queryRetry)
	publisher := service.NewOutboxPublisher(outboxRepo, txManager, streamProducer, app.Metrics)

	workerCfg := app.Config.Worker
	orderCfg := app.Config.Order

	app.Logger.Info().
		Dur("sweep_interval", workerCfg.SweepInterval).
		Int("batch_size", workerCfg.SweepBatchSize).
		Msg("Worker started")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Expiry sweep: close pending orders past their expiry.
	g.Go(func() error {
		return runLockedSweep(gCtx, app, "sweep:expiry", workerCfg.SweepInterval,
			func(loopCtx context.Context) error {
				n, err := settlementSvc.SweepExpired(loopCtx, time.Now(), workerCfg.SweepBatchSize)
				if n > 0 {
					app.Logger.Info().Int("closed", n).Msg("Expiry sweep finished")
				}
				return err
			})
	})

	// 2. Stale-pending reconcile: converge orders whose webhook was lost.
	g.Go(func() error {
		return runLockedSweep(gCtx, app, "sweep:reconcile", workerCfg.SweepInterval,
			func(loopCtx context.Context) error {
				cutoff := time.Now().Add(-orderCfg.ReconcileAfter)
				n, err := settlementSvc.ReconcileStale(loopCtx, cutoff, workerCfg.SweepBatchSize)
				if n > 0 {
					app.Logger.Info().Int("reconciled", n).Msg("Stale reconcile finished")
				}
				return err
			})
	})

	// 3. Outbox publisher: pushes staged settlement events to the stream.
	g.Go(func() error {
		return runOutboxPublisher(gCtx, app, publisher, workerCfg.OutboxPollInterval)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runLockedSweep runs fn on every tick while holding a distributed lock,
// so only one worker instance sweeps at a time. A held lock means another
// instance is already on it; skip the tick.
func runLockedSweep(
	ctx context.Context,
	app *bootstrap.App,
	lockKey string,
	interval time.Duration,
	fn func(ctx context.Context) error,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := infraRedis.NewDistributedLock(app.Redis, lockKey, app.Config.Order.LockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Str("lock", lockKey).Msg("Lock acquisition error")
			continue
		}
		if !acquired {
			continue
		}

		if err := fn(ctx); err != nil {
			app.Logger.Error().Err(err).Str("lock", lockKey).Msg("Sweep error")
		}
		lock.Release(ctx)
	}
}

// runOutboxPublisher drains pending outbox entries to the settlement
// event stream on every tick.
func runOutboxPublisher(
	ctx context.Context,
	app *bootstrap.App,
	publisher *service.OutboxPublisher,
	pollInterval time.Duration,
) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := publisher.PublishPending(ctx, 10)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Outbox publisher error")
		}
		if n > 0 {
			app.Logger.Debug().Int("published", n).Msg("Outbox batch published")
		}
	}
}
