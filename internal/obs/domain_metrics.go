package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutCommitsTotal counts commit attempts by outcome.
	CheckoutCommitsTotal *prometheus.CounterVec
	// CheckoutCommitDuration records commit latency in milliseconds.
	CheckoutCommitDuration *prometheus.HistogramVec
	// CheckoutCompensationsTotal counts compensation steps run after a failed commit.
	CheckoutCompensationsTotal *prometheus.CounterVec
	// PricingDiscountSourceTotal counts which discount category won a quote.
	PricingDiscountSourceTotal *prometheus.CounterVec
	// LoyaltyPointsAccrued sums points credited by committed sales.
	LoyaltyPointsAccrued prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_commits_total",
			Help:      "Count of checkout commit outcomes.",
		}, []string{"result"})
		CheckoutCommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_commit_duration_ms",
			Help:      "Latency of checkout commits in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		CheckoutCompensationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_compensations_total",
			Help:      "Compensation steps executed after failed commits.",
		}, []string{"step"})
		PricingDiscountSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_discount_source_total",
			Help:      "Quotes by winning discount source.",
		}, []string{"source"})
		LoyaltyPointsAccrued = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_accrued_total",
			Help:      "Loyalty points credited by committed sales.",
		})

		mustRegisterCollector(reg, CheckoutCommitsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutCommitsTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutCommitDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CheckoutCommitDuration = v
			}
		})
		mustRegisterCollector(reg, CheckoutCompensationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutCompensationsTotal = v
			}
		})
		mustRegisterCollector(reg, PricingDiscountSourceTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingDiscountSourceTotal = v
			}
		})
		mustRegisterCollector(reg, LoyaltyPointsAccrued, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				LoyaltyPointsAccrued = v
			}
		})
	})
}

// ObserveCommit records a commit outcome. It is a no-op until the metrics are registered.
func ObserveCommit(result string, elapsed time.Duration) {
	if CheckoutCommitsTotal != nil {
		CheckoutCommitsTotal.WithLabelValues(result).Inc()
	}
	if CheckoutCommitDuration != nil {
		CheckoutCommitDuration.WithLabelValues(result).Observe(DurationMillis(elapsed))
	}
}

// CountCompensation records one compensation step.
func CountCompensation(step string) {
	if CheckoutCompensationsTotal != nil {
		CheckoutCompensationsTotal.WithLabelValues(step).Inc()
	}
}

// CountDiscountSource records the winning source of a quote.
func CountDiscountSource(source string) {
	if PricingDiscountSourceTotal != nil {
		PricingDiscountSourceTotal.WithLabelValues(source).Inc()
	}
}

// AddPointsAccrued adds credited loyalty points.
func AddPointsAccrued(points int64) {
	if LoyaltyPointsAccrued != nil && points > 0 {
		LoyaltyPointsAccrued.Add(float64(points))
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
