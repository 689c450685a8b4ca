package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the query API.
type Collector struct {
	reg *prometheus.Registry

	QueriesTotal  *prometheus.CounterVec // labels: kind, status
	QueryDuration *prometheus.HistogramVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	Connections prometheus.Gauge
	Stops       prometheus.Gauge
}

// NewCollector registers the metric set on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_queries_total",
			Help: "Total engine queries by kind and outcome.",
		}, []string{"kind", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_query_duration_seconds",
			Help:    "Duration of engine queries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_cache_hits_total",
			Help: "Query results served from Redis.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_cache_misses_total",
			Help: "Query results computed after a cache miss.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_timetable_connections",
			Help: "Connections in the loaded timetable.",
		}),
		Stops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_timetable_stops",
			Help: "Stops in the loaded timetable.",
		}),
	}

	reg.MustRegister(
		c.QueriesTotal, c.QueryDuration,
		c.CacheHits, c.CacheMisses,
		c.Connections, c.Stops,
	)

	return c
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
