package loyalty

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Unbounded marks the open upper end of the last tier.
const Unbounded int64 = math.MaxInt64

var (
	// ErrNoTiers is returned when a table is built without tiers.
	ErrNoTiers = errors.New("loyalty: at least one tier is required")
	// ErrPartition indicates the tiers do not cover every non-negative point total exactly once.
	ErrPartition = errors.New("loyalty: tiers must partition the non-negative integers")
)

// Tier is a named point bracket carrying a discount.
type Tier struct {
	Name       string
	MinPoints  int64
	MaxPoints  int64
	PercentBps int32
}

// Contains reports whether the point total belongs to the tier.
func (t Tier) Contains(points int64) bool {
	return points >= t.MinPoints && points <= t.MaxPoints
}

// Table is an ordered, contiguous partition of point totals into tiers.
type Table struct {
	tiers []Tier
}

// NewTable sorts and validates the tiers. The first tier must start at zero, every tier
// must start right after the previous one ends and the last tier must be unbounded.
func NewTable(tiers []Tier) (Table, error) {
	if len(tiers) == 0 {
		return Table{}, ErrNoTiers
	}
	sorted := append([]Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })

	if sorted[0].MinPoints != 0 {
		return Table{}, fmt.Errorf("%w: first tier %q starts at %d", ErrPartition, sorted[0].Name, sorted[0].MinPoints)
	}
	for i, t := range sorted {
		if t.Name == "" {
			return Table{}, fmt.Errorf("loyalty: tier %d has no name", i)
		}
		if t.MaxPoints < t.MinPoints {
			return Table{}, fmt.Errorf("%w: tier %q ends before it starts", ErrPartition, t.Name)
		}
		if t.PercentBps < 0 || t.PercentBps > 10000 {
			return Table{}, fmt.Errorf("loyalty: tier %q discount out of range", t.Name)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.MaxPoints == Unbounded || prev.MaxPoints+1 != t.MinPoints {
			return Table{}, fmt.Errorf("%w: gap or overlap between %q and %q", ErrPartition, prev.Name, t.Name)
		}
	}
	if last := sorted[len(sorted)-1]; last.MaxPoints != Unbounded {
		return Table{}, fmt.Errorf("%w: last tier %q must be unbounded", ErrPartition, last.Name)
	}
	return Table{tiers: sorted}, nil
}

// MustTable is NewTable for static configuration.
func MustTable(tiers []Tier) Table {
	t, err := NewTable(tiers)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTable returns the café's standard tier ladder.
func DefaultTable() Table {
	return MustTable([]Tier{
		{Name: "Bronce", MinPoints: 0, MaxPoints: 499, PercentBps: 0},
		{Name: "Plata", MinPoints: 500, MaxPoints: 1499, PercentBps: 500},
		{Name: "Oro", MinPoints: 1500, MaxPoints: 4999, PercentBps: 1000},
		{Name: "Platino", MinPoints: 5000, MaxPoints: 9999, PercentBps: 1500},
		{Name: "Diamante", MinPoints: 10000, MaxPoints: Unbounded, PercentBps: 2000},
	})
}

// Tiers returns a copy of the ordered tiers.
func (t Table) Tiers() []Tier {
	return append([]Tier(nil), t.tiers...)
}

// Lookup returns the tier that owns the point total. Negative totals map to the first tier.
func (t Table) Lookup(points int64) Tier {
	if len(t.tiers) == 0 {
		return Tier{}
	}
	if points < 0 {
		return t.tiers[0]
	}
	idx := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].MaxPoints >= points })
	if idx >= len(t.tiers) {
		return t.tiers[len(t.tiers)-1]
	}
	return t.tiers[idx]
}
