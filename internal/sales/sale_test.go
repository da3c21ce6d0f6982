package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryAppendRejectsDuplicateCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sale := Sale{CommitID: "commit-1", EmployeeID: "e1", Total: 5100, Timestamp: time.Now(),
		Lines: []Line{{ItemID: "52", Quantity: 2, UnitPrice: 3000, LineTotal: 6000}}}

	id, err := store.Append(ctx, sale)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = store.Append(ctx, sale)
	require.ErrorIs(t, err, ErrDuplicateCommit)

	found, err := store.FindByCommitID(ctx, "commit-1")
	require.NoError(t, err)
	require.Equal(t, id, found.ID)
	require.Len(t, store.All(), 1)

	_, err = store.FindByCommitID(ctx, "other")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHistory(t *testing.T) {
	h := NewMemoryHistory()
	now := time.Now()
	require.NoError(t, h.Record(context.Background(), "e1", SummaryOf(Sale{ID: "s1", Total: 10, Timestamp: now})))
	require.NoError(t, h.Record(context.Background(), "e1", SummaryOf(Sale{ID: "s2", Total: 20, Timestamp: now})))
	entries := h.For("e1")
	require.Len(t, entries, 2)
	require.Equal(t, "s2", entries[1].SaleID)
	require.Empty(t, h.For("e2"))
}
