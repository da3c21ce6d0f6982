package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/notify"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func tierEvent(t *testing.T) events.Event {
	t.Helper()
	payload, err := json.Marshal(events.TierChanged{CustomerID: "c1", OldTier: "Oro", NewTier: "Platino", Balance: 5200})
	require.NoError(t, err)
	return events.Event{ID: "ev-1", Topic: events.TopicLoyaltyTierChange, AggregateID: "c1", Payload: payload}
}

func TestTaskNotifierEnqueuesTierChanges(t *testing.T) {
	client := &fakeEnqueuer{}
	n := notify.TaskNotifier{Client: client}

	require.NoError(t, n.Notify(context.Background(), tierEvent(t)))
	require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicSaleCommitted}))

	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TypeTierChanged, client.tasks[0].Type())
	require.NotEmpty(t, client.opts[0])
}

func TestTaskNotifierToleratesDuplicates(t *testing.T) {
	n := notify.TaskNotifier{Client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, n.Notify(context.Background(), tierEvent(t)))

	n = notify.TaskNotifier{Client: &fakeEnqueuer{err: errors.New("redis down")}}
	require.Error(t, n.Notify(context.Background(), tierEvent(t)))

	require.Error(t, notify.TaskNotifier{}.Notify(context.Background(), tierEvent(t)))
}

func TestTierWorkerDelivers(t *testing.T) {
	var got []events.TierChanged
	w := notify.TierWorker{Deliver: func(_ context.Context, c events.TierChanged) error {
		got = append(got, c)
		return nil
	}}
	task := asynq.NewTask(notify.TypeTierChanged, tierEvent(t).Payload)
	require.NoError(t, w.ProcessTask(context.Background(), task))
	require.Equal(t, []events.TierChanged{{CustomerID: "c1", OldTier: "Oro", NewTier: "Platino", Balance: 5200}}, got)
}

func TestTierWorkerSkipsMalformed(t *testing.T) {
	w := notify.TierWorker{}
	err := w.ProcessTask(context.Background(), asynq.NewTask(notify.TypeTierChanged, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessTask(context.Background(), asynq.NewTask(notify.TypeTierChanged, []byte(`{"customerId":""}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTierWorkerRetriesDeliveryFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := notify.TierWorker{
		Locker:  &lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Deliver: func(context.Context, events.TierChanged) error { return errors.New("smtp timeout") },
	}
	err = w.ProcessTask(context.Background(), asynq.NewTask(notify.TypeTierChanged, tierEvent(t).Payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, mr.Keys(), "lock released after delivery")
}
