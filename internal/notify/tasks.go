package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-kasir/internal/events"
)

// TypeTierChanged is the asynq task type for loyalty tier transitions.
const TypeTierChanged = "loyalty:tier_changed"

// DefaultQueue is the asynq queue notifications are published on.
const DefaultQueue = "notifications"

// Enqueuer is the subset of *asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier is an events.Notifier that turns tier transitions into asynq
// tasks for the worker. Other topics are ignored.
type TaskNotifier struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

// Notify implements events.Notifier. The event id is used as task id, so a
// re-emitted event is enqueued once.
func (n TaskNotifier) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicLoyaltyTierChange {
		return nil
	}
	if n.Client == nil {
		return errors.New("notify: task client not configured")
	}
	queue := strings.TrimSpace(n.Queue)
	if queue == "" {
		queue = DefaultQueue
	}
	retries := n.MaxRetry
	if retries <= 0 {
		retries = 10
	}
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(retries)}
	if ev.ID != "" {
		opts = append(opts, asynq.TaskID(ev.ID))
	}
	task := asynq.NewTask(TypeTierChanged, ev.Payload)
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("notify: enqueue %s: %w", TypeTierChanged, err)
	}
	return nil
}
