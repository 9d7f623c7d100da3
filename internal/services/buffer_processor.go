package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/infrastructure/buffer"
	"github.com/fastygo/studyplanner/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// BufferProcessor replays buffered planner writes against the primary repositories.
type BufferProcessor struct {
	store      *buffer.Store
	monitor    ConnectionHealth
	activities repository.ActivityRepository
	sessions   repository.SessionRepository
	logger     *zap.Logger
	cron       *cron.Cron
	cfg        ProcessorConfig

	drainMu sync.Mutex
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	activities repository.ActivityRepository,
	sessions repository.SessionRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:      store,
		monitor:    monitor,
		activities: activities,
		sessions:   sessions,
		logger:     logger,
		cfg:        cfg,
		cron:       cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", max(int(cfg.Interval.Seconds()), 1))
	_, _ = bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	})
	if cfg.Retention > 0 {
		_, _ = bp.cron.AddFunc("@hourly", bp.expire)
	}

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// DrainAsync starts a drain without waiting for it, used when the backend reconnects.
func (bp *BufferProcessor) DrainAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bp.cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	}()
}

// Drain replays one batch of buffered items in order.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return nil
	}

	bp.drainMu.Lock()
	defer bp.drainMu.Unlock()

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := bp.processItem(ctx, item); err != nil {
			bp.logger.Error("failed to replay buffered write",
				zap.String("item_id", item.ID),
				zap.String("entity", item.Entity),
				zap.String("user_id", item.UserID),
				zap.Error(err))

			item.Retries++
			if item.Retries >= bp.cfg.MaxRetries {
				bp.logger.Warn("dropping buffered write (max retries reached)", zap.String("item_id", item.ID))
				_ = bp.store.Remove(item)
				continue
			}
			if _, err := bp.store.Requeue(item); err != nil {
				bp.logger.Error("failed to requeue buffered write", zap.Error(err))
			}
			continue
		}

		if err := bp.store.Remove(item); err != nil {
			bp.logger.Warn("failed to purge replayed write", zap.Error(err))
		}
	}
	return nil
}

// Submit writes item to primary storage, falling back to the durable buffer. The write
// counts as done when either accepts it.
func (bp *BufferProcessor) Submit(ctx context.Context, item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("buffer processor not configured")
	}

	if bp.monitor == nil || bp.monitor.IsOnline() {
		err := bp.processItem(ctx, item)
		if err == nil {
			// an older buffered write for the same record must not replay over this one
			if err := bp.store.Discard(item.ID); err != nil {
				bp.logger.Warn("failed to discard superseded buffered write", zap.Error(err))
			}
			return nil
		}
		if domain.IsDomainError(err, domain.ErrCodeNotFound) || domain.IsDomainError(err, domain.ErrCodeInvalid) {
			return err
		}
		bp.logger.Warn("immediate write failed, buffering", zap.String("item_id", item.ID), zap.Error(err))
		if bufErr := bp.store.Enqueue(item); bufErr != nil {
			return errors.Join(err, bufErr)
		}
		return nil
	}
	return bp.store.Enqueue(item)
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) expire() {
	removed, err := bp.store.Cleanup(time.Now().Add(-bp.cfg.Retention))
	if err != nil {
		bp.logger.Error("buffer cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		bp.logger.Warn("expired buffered writes", zap.Int("count", removed))
	}
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	if ctx == nil {
		ctx = context.Background()
	}

	switch item.Entity {
	case buffer.EntityActivities:
		if item.Operation != buffer.OperationReplace {
			return fmt.Errorf("unsupported operation %s", item.Operation)
		}
		var activities []domain.Activity
		if err := json.Unmarshal(item.Data, &activities); err != nil {
			return err
		}
		return bp.activities.Replace(ctx, item.UserID, activities)

	case buffer.EntitySession:
		var session domain.Session
		if err := json.Unmarshal(item.Data, &session); err != nil {
			return err
		}
		switch item.Operation {
		case buffer.OperationUpsert:
			return bp.sessions.Upsert(ctx, item.UserID, &session)
		case buffer.OperationDelete:
			err := bp.sessions.Delete(ctx, item.UserID, session.ID)
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil
			}
			return err
		default:
			return fmt.Errorf("unsupported operation %s", item.Operation)
		}
	default:
		return fmt.Errorf("unsupported entity %s", item.Entity)
	}
}
