package idempotency_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/idempotency"
)

func newStore(t *testing.T) (idempotency.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return idempotency.Store{R: client, TTL: time.Hour}, mr
}

func TestBeginCompleteReplay(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	prior, err := store.Begin(ctx, "commit-1")
	require.NoError(t, err)
	require.Nil(t, prior)

	_, err = store.Begin(ctx, "commit-1")
	require.ErrorIs(t, err, idempotency.ErrInFlight)

	require.NoError(t, store.Complete(ctx, "commit-1", []byte(`{"id":"s1"}`)))

	prior, err = store.Begin(ctx, "commit-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"s1"}`, string(prior))

	// abort never discards a completed result
	require.NoError(t, store.Abort(ctx, "commit-1"))
	prior, err = store.Begin(ctx, "commit-1")
	require.NoError(t, err)
	require.NotNil(t, prior)
}

func TestAbortReleasesClaim(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "commit-2")
	require.NoError(t, err)
	require.NoError(t, store.Abort(ctx, "commit-2"))

	prior, err := store.Begin(ctx, "commit-2")
	require.NoError(t, err)
	require.Nil(t, prior)
}

func TestClaimExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "commit-3")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	prior, err := store.Begin(ctx, "commit-3")
	require.NoError(t, err)
	require.Nil(t, prior)
}

func TestBeginRequiresKey(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Begin(context.Background(), "  ")
	require.ErrorIs(t, err, idempotency.ErrMissingKey)
}
