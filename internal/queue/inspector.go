package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Inspector is the subset of *asynq.Inspector the admin surface needs.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	RunAllArchivedTasks(queue string) (int, error)
}

// Stats is a snapshot of one queue.
type Stats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}

// Snapshot reads the queue counters and publishes them as gauges.
// A queue that has never seen a task reports zeros.
func Snapshot(in Inspector, queue string) (Stats, error) {
	info, err := in.GetQueueInfo(queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			stats := Stats{Queue: queue}
			record(stats)
			return stats, nil
		}
		return Stats{}, err
	}
	stats := Stats{
		Queue:     queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
		Failed:    info.Failed,
		Paused:    info.Paused,
	}
	record(stats)
	return stats, nil
}

// Poll refreshes the gauges every interval until ctx is done.
func Poll(ctx context.Context, in Inspector, queue string, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := Snapshot(in, queue); err != nil {
			logger.Warn().Err(err).Str("queue", queue).Msg("queue snapshot failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
