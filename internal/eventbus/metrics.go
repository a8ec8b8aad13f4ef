package eventbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	publishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arecibo_eventbus_publish_failures_total",
			Help: "Total number of event batch publish attempts that failed to reach the stream",
		},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arecibo_eventbus_nats_reconnects_total",
			Help: "Total number of NATS reconnection events",
		},
	)

	metricsOnce sync.Once
)

func init() {
	metricsOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(publishFailuresTotal)
		prometheus.DefaultRegisterer.MustRegister(reconnectsTotal)
	})
}
