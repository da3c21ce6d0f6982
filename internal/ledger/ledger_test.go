package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryCreditDebit(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(Account{CustomerID: "c1", PointBalance: 300, IsVIP: true})

	require.NoError(t, l.Credit(ctx, "c1", 50))
	require.NoError(t, l.Debit(ctx, "c1", 200))
	acct, err := l.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(150), acct.PointBalance)
	require.True(t, acct.IsVIP)

	require.ErrorIs(t, l.Debit(ctx, "c1", 151), ErrInsufficientBalance)
	require.ErrorIs(t, l.Credit(ctx, "c1", 0), ErrInvalidPoints)
	require.ErrorIs(t, l.Credit(ctx, "ghost", 10), ErrNotFound)
	_, err = l.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBalanceReader(t *testing.T) {
	r := BalanceReader{Ledger: NewMemory(Account{CustomerID: "c1", PointBalance: 1800})}
	b, err := r.PointBalance(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1800), b)
	_, err = r.PointBalance(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
