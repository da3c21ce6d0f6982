package loyalty

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTablePartition(t *testing.T) {
	table := DefaultTable()
	tiers := table.Tiers()
	for p := int64(0); p <= 12000; p++ {
		owners := 0
		for _, tier := range tiers {
			if tier.Contains(p) {
				owners++
			}
		}
		require.Equalf(t, 1, owners, "points %d owned by %d tiers", p, owners)
		require.True(t, table.Lookup(p).Contains(p))
	}
	require.Equal(t, "Diamante", table.Lookup(Unbounded).Name)
}

func TestLookupBoundaries(t *testing.T) {
	table := DefaultTable()
	cases := map[int64]string{
		0:     "Bronce",
		499:   "Bronce",
		500:   "Plata",
		1499:  "Plata",
		1500:  "Oro",
		1800:  "Oro",
		4999:  "Oro",
		5000:  "Platino",
		10000: "Diamante",
		-5:    "Bronce",
	}
	for points, name := range cases {
		require.Equalf(t, name, table.Lookup(points).Name, "points %d", points)
	}
}

func TestNewTableRejectsBadPartitions(t *testing.T) {
	cases := map[string][]Tier{
		"empty": nil,
		"not from zero": {
			{Name: "A", MinPoints: 1, MaxPoints: Unbounded},
		},
		"gap": {
			{Name: "A", MinPoints: 0, MaxPoints: 99},
			{Name: "B", MinPoints: 101, MaxPoints: Unbounded},
		},
		"overlap": {
			{Name: "A", MinPoints: 0, MaxPoints: 100},
			{Name: "B", MinPoints: 100, MaxPoints: Unbounded},
		},
		"bounded last": {
			{Name: "A", MinPoints: 0, MaxPoints: 99},
			{Name: "B", MinPoints: 100, MaxPoints: 200},
		},
	}
	for name, tiers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTable(tiers)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrPartition) || errors.Is(err, ErrNoTiers), "unexpected error %v", err)
		})
	}
}

func TestNewTableSortsInput(t *testing.T) {
	table, err := NewTable([]Tier{
		{Name: "Gold", MinPoints: 100, MaxPoints: Unbounded, PercentBps: 1000},
		{Name: "Base", MinPoints: 0, MaxPoints: 99},
	})
	require.NoError(t, err)
	require.Equal(t, "Base", table.Tiers()[0].Name)
	require.Equal(t, "Gold", table.Lookup(150).Name)
}

func TestAccrueOroCustomer(t *testing.T) {
	oro := DefaultTable().Lookup(1800)
	points := DefaultAccrual().Accrue(9000, false, oro)
	require.Equal(t, int64(9900), points)
}

func TestAccrueVIPAtLeastRegular(t *testing.T) {
	policy := DefaultAccrual()
	table := DefaultTable()
	for _, total := range []int64{0, 1, 99, 5100, 9000, 123457} {
		for _, balance := range []int64{0, 700, 1800, 6000, 20000} {
			tier := table.Lookup(balance)
			regular := policy.Accrue(total, false, tier)
			vip := policy.Accrue(total, true, tier)
			require.GreaterOrEqual(t, regular, int64(0))
			require.GreaterOrEqual(t, vip, regular)
		}
	}
}

func TestAccrueFractionalRate(t *testing.T) {
	policy := AccrualPolicy{PointsPerUnit: 0.01, VIPMultiplier: 2}
	require.Equal(t, int64(90), policy.Accrue(9050, false, Tier{}))
	require.Equal(t, int64(180), policy.Accrue(9050, true, Tier{}))
	require.Equal(t, int64(0), policy.Accrue(-10, true, Tier{}))
}
