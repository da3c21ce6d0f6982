package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/lock"
)

// DeliverFunc hands a tier transition to the customer-facing channel.
type DeliverFunc func(ctx context.Context, change events.TierChanged) error

// TierWorker consumes tier transition tasks.
type TierWorker struct {
	Deliver DeliverFunc
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  *zerolog.Logger
}

// Register binds the worker to the mux.
func (w TierWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTierChanged, w.ProcessTask)
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (w TierWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var change events.TierChanged
	if err := json.Unmarshal(task.Payload(), &change); err != nil {
		return fmt.Errorf("notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(change.CustomerID) == "" || change.NewTier == "" {
		return fmt.Errorf("notify: incomplete tier change: %w", asynq.SkipRetry)
	}
	deliver := func(ctx context.Context) error {
		logger := w.logger().With().
			Str("customer_id", change.CustomerID).
			Str("old_tier", change.OldTier).
			Str("new_tier", change.NewTier).
			Int64("balance", change.Balance).
			Logger()
		if w.Deliver != nil {
			if err := w.Deliver(ctx, change); err != nil {
				logger.Warn().Err(err).Msg("tier notification delivery failed")
				return err
			}
		}
		logger.Info().Msg("tier notification delivered")
		return nil
	}
	if w.Locker == nil {
		return deliver(ctx)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	err := w.Locker.WithLock(ctx, "lock:notify:tier:"+change.CustomerID, ttl, deliver)
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("notify: customer %s busy: %w", change.CustomerID, err)
	}
	return err
}

func (w TierWorker) logger() *zerolog.Logger {
	if w.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return w.Logger
}
