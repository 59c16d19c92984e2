// Package main is the background worker. It relays outbox events to Redis,
// purges delivered messages and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"orderflow/internal/app"
	"orderflow/internal/infrastructure/config"
	"orderflow/internal/infrastructure/notifier"
	"orderflow/internal/infrastructure/storage/postgres"
	"orderflow/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatalw("worker requires postgres storage", "driver", cfg.Storage.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := app.NewPostgresStorage(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer st.Close()

	rdb, err := app.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	if rdb == nil {
		log.Fatalw("worker requires redis to relay events")
	}
	defer func() { _ = rdb.Close() }()

	w := &Worker{
		cfg:   cfg.Worker,
		txm:   st.Postgres,
		relay: postgres.NewOutboxRelay(st.Postgres, cfg.Worker.BatchSize, notifier.NewRedisPublisher(rdb, cfg.Notification.ChannelPrefix)),
		store: st.Idempotency,
		log:   log.WithComponent("worker"),
	}

	log.Infow("worker started",
		"poll_interval", cfg.Worker.PollInterval,
		"cleanup_interval", cfg.Worker.CleanupInterval,
	)
	w.Run(ctx)
	log.Info("worker stopped")
}

// expirer is the part of the idempotency store the worker needs.
type expirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker runs the relay and cleanup loops until its context is cancelled.
type Worker struct {
	cfg   config.WorkerConfig
	txm   *postgres.TxManager
	relay *postgres.OutboxRelay
	store expirer
	log   *logger.Logger
}

// Run blocks until ctx is done and both loops have returned.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		w.relayLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		w.cleanupLoop(ctx)
	}()

	wg.Wait()
}

func (w *Worker) relayLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain while full batches keep coming back.
			for {
				n, err := w.relay.ProcessBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.log.Errorw("outbox relay failed", "error", err)
					}
					break
				}
				if n > 0 {
					w.log.Debugw("relayed outbox batch", "count", n)
				}
				if n < w.cfg.BatchSize {
					break
				}
			}
		}
	}
}

func (w *Worker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.PurgePublished(ctx, w.cfg.PurgeAfter); err != nil {
		w.log.Errorw("outbox purge failed", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if n, err := w.store.CleanupExpired(ctx); err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
	} else if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}

	postgres.LogPoolStats(ctx, w.txm)
}
