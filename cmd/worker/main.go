package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/queue"
	"geoattend/internal/store"
)

// Worker consumes override events and writes them to the audit table.
func main() {
	cfg := config.Load()

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs a shared queue; set QUEUE_BACKEND=redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	repo := attendance.NewRepository(db.Client, logger.Named("repo"))
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started", zap.String("queue", cfg.QueueKey))
	newAuditor(repo, logger).run(ctx, messages)
	logger.Info("worker stopped")
}

type auditStore interface {
	InsertOverrideAudit(ctx context.Context, evt attendance.OverrideEvent) error
}

// auditor writes override events to the audit table.
type auditor struct {
	store    auditStore
	log      *zap.Logger
	attempts int
	backoff  time.Duration
}

func newAuditor(store auditStore, log *zap.Logger) *auditor {
	return &auditor{store: store, log: log, attempts: 3, backoff: 500 * time.Millisecond}
}

func (a *auditor) run(ctx context.Context, messages <-chan queue.Message) {
	for msg := range messages {
		a.handle(ctx, msg)
	}
}

// handle reports whether the event was recorded.
func (a *auditor) handle(ctx context.Context, msg queue.Message) bool {
	evt, err := attendance.DecodeOverride(msg)
	if err != nil {
		a.log.Warn("dropping message", zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	if err := a.record(ctx, evt); err != nil {
		a.log.Error("override audit failed",
			zap.String("mark_id", evt.MarkID),
			zap.String("actor_id", evt.ActorID),
			zap.Error(err))
		return false
	}
	a.log.Info("override audited",
		zap.String("mark_id", evt.MarkID),
		zap.String("actor_id", evt.ActorID),
		zap.Bool("is_inside", evt.IsInside))
	return true
}

// record retries transient store failures with a linear backoff.
func (a *auditor) record(ctx context.Context, evt attendance.OverrideEvent) error {
	var err error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		if err = a.store.InsertOverrideAudit(ctx, evt); err == nil {
			return nil
		}
		if attempt == a.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * a.backoff):
		}
	}
	return err
}
