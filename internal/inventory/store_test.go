package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryDecrementGuardsStock(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(map[string]int64{"52": 5})

	require.NoError(t, store.Decrement(ctx, "52", 3))
	qty, err := store.StockOf(ctx, "52")
	require.NoError(t, err)
	require.Equal(t, int64(2), qty)

	require.ErrorIs(t, store.Decrement(ctx, "52", 3), ErrInsufficientStock)
	require.ErrorIs(t, store.Decrement(ctx, "unknown", 1), ErrInsufficientStock)
	require.ErrorIs(t, store.Decrement(ctx, "52", 0), ErrInvalidQuantity)

	require.NoError(t, store.Increment(ctx, "52", 3))
	require.Equal(t, map[string]int64{"52": 5}, store.Snapshot())
}

func TestMemoryConcurrentDecrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(map[string]int64{"52": 100})
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Decrement(ctx, "52", 1); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	qty, _ := store.StockOf(ctx, "52")
	require.Equal(t, int64(0), qty)
	require.Equal(t, 50, failures)
}
