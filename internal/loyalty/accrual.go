package loyalty

import "math"

// AccrualPolicy converts a paid total into loyalty points.
//
// PointsPerUnit defaults to one point per currency unit, which makes point totals
// numerically equal to money spent and outgrows the tier thresholds after a single
// large sale. The ratio is kept as observed and exposed as configuration.
type AccrualPolicy struct {
	PointsPerUnit float64
	VIPMultiplier int64
}

// DefaultAccrual returns 1 point per currency unit and a VIP multiplier of 2.
func DefaultAccrual() AccrualPolicy {
	return AccrualPolicy{PointsPerUnit: 1, VIPMultiplier: 2}
}

// Accrue computes floor(total*rate), multiplied for VIPs, plus the tier bonus
// floor(base*tier%).
func (p AccrualPolicy) Accrue(total int64, isVIP bool, tier Tier) int64 {
	if total <= 0 || p.PointsPerUnit <= 0 {
		return 0
	}
	base := int64(math.Floor(float64(total) * p.PointsPerUnit))
	if isVIP && p.VIPMultiplier > 1 {
		base *= p.VIPMultiplier
	}
	var bonus int64
	if tier.PercentBps > 0 {
		bonus = (base * int64(tier.PercentBps)) / 10000
	}
	return base + bonus
}
