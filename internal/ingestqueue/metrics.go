package ingestqueue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the local ingest queue, adapted from the
// reference codebase's queue-lag/dlq gauge-under-lock pattern.
var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arecibo_ingest_queue_depth",
		Help: "Number of events currently buffered in the local ingest queue.",
	})

	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arecibo_ingest_queue_dropped_total",
			Help: "Total events dropped from the local ingest queue, by cause.",
		},
		[]string{"cause"}, // queue_size, policy
	)

	metricsOnce sync.Once
)

// RegisterMetrics registers the queue's Prometheus collectors against reg.
// Safe to call multiple times; registration happens once per process.
func RegisterMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		reg.MustRegister(queueDepth)
		reg.MustRegister(droppedTotal)
	})
}

// observeLocked pushes the current depth into the gauge. Called with the
// queue lock held after every push, pop and drain so the exported gauge
// never lags actual state.
func (q *Queue) observeLocked() {
	queueDepth.Set(float64(len(q.items)))
}
