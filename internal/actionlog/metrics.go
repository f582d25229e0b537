package actionlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments a Store.
type Metrics struct {
	notifications *prometheus.CounterVec
	instances     prometheus.Gauge
	evictions     prometheus.Counter
	queryMisses   *prometheus.CounterVec
}

// NewMetrics registers action log metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devbridge_actionlog_notifications_total",
			Help: "Notifications applied to instance histories, by kind",
		}, []string{"kind"}),
		instances: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devbridge_actionlog_instances",
			Help: "Number of instances with a history",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "devbridge_actionlog_evictions_total",
			Help: "History entries evicted to respect the max age",
		}),
		queryMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devbridge_actionlog_query_misses_total",
			Help: "State queries that could not be answered, by reason",
		}, []string{"reason"}),
	}
}
