package queue

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsMu  sync.RWMutex
	queueDepth *prometheus.GaugeVec
	deadSize   *prometheus.GaugeVec
)

// MustRegisterMetrics registers the queue gauges. Calling it again reuses the
// collectors already registered.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Tasks per queue and state",
	}, []string{"queue", "state"})
	dead := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_dlq_size",
		Help:      "Archived tasks that exhausted their retries",
	}, []string{"queue"})

	depth = mustRegister(reg, depth)
	dead = mustRegister(reg, dead)

	metricsMu.Lock()
	queueDepth, deadSize = depth, dead
	metricsMu.Unlock()
}

func mustRegister(reg prometheus.Registerer, g *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return g
}

func record(s Stats) {
	metricsMu.RLock()
	depth, dead := queueDepth, deadSize
	metricsMu.RUnlock()
	if depth == nil {
		return
	}
	depth.WithLabelValues(s.Queue, "pending").Set(float64(s.Pending))
	depth.WithLabelValues(s.Queue, "active").Set(float64(s.Active))
	depth.WithLabelValues(s.Queue, "scheduled").Set(float64(s.Scheduled))
	depth.WithLabelValues(s.Queue, "retry").Set(float64(s.Retry))
	dead.WithLabelValues(s.Queue).Set(float64(s.Archived))
}
