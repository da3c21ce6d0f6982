package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/notify"
	"github.com/noah-isme/backend-kasir/internal/resilience"
)

func TestWebhookSignsAndPosts(t *testing.T) {
	now := time.Unix(1717340400, 0)
	var got events.TierChanged
	var sig, ts string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		sig = r.Header.Get(notify.HeaderSignature)
		ts = r.Header.Get(notify.HeaderTimestamp)
		require.Equal(t, notify.ComputeSignature("shh", now.Unix(), body), sig)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := notify.Webhook{
		URL:    srv.URL,
		Secret: "shh",
		Client: resilience.Client{HTTP: srv.Client()},
		Now:    func() time.Time { return now },
	}
	change := events.TierChanged{CustomerID: "c1", OldTier: "Oro", NewTier: "Platino", Balance: 5200}
	require.NoError(t, hook.Deliver(context.Background(), change))
	require.Equal(t, change, got)
	require.Equal(t, "1717340400", ts)
	require.NotEmpty(t, sig)
}

func TestWorkerRetriesThroughWebhook(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hook := notify.Webhook{
		URL: srv.URL,
		Client: resilience.Client{
			HTTP:        srv.Client(),
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
		},
	}
	w := notify.TierWorker{Deliver: hook.Deliver}
	err := w.ProcessTask(context.Background(), asynq.NewTask(notify.TypeTierChanged, tierEvent(t).Payload))
	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, int32(2), calls.Load())
}

func TestWebhookRequiresURL(t *testing.T) {
	require.Error(t, notify.Webhook{}.Deliver(context.Background(), events.TierChanged{CustomerID: "c1"}))
}
