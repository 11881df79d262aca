package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	logsIngestedTotal  *prometheus.CounterVec
	sweepUpdatesTotal  *prometheus.CounterVec
	sweepDuration      prometheus.Histogram
	actionsTotal       *prometheus.CounterVec
	authorityLatency   *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and jobs.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interlock_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		logsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_logs_ingested_total",
			Help: "Driving logs ingested, by anomaly type and risk level.",
		}, []string{"anomaly_type", "risk_level"})

		sweepUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_sweep_schedules_total",
			Help: "Schedules visited by the overdue sweep, by outcome.",
		}, []string{"outcome"})

		sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "interlock_sweep_duration_seconds",
			Help:    "Wall time of one overdue sweep.",
			Buckets: prometheus.DefBuckets,
		})

		actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_actions_total",
			Help: "Admin actions reaching a final status, by type and status.",
		}, []string{"action_type", "status"})

		authorityLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interlock_authority_latency_seconds",
			Help:    "Latency of licensing authority calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, logsIngestedTotal,
			sweepUpdatesTotal, sweepDuration, actionsTotal, authorityLatency,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// LogsIngested exposes the ingestion counter.
func LogsIngested() *prometheus.CounterVec {
	RegisterMetrics()
	return logsIngestedTotal
}

// SweepUpdates exposes the per-schedule sweep outcome counter.
func SweepUpdates() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepUpdatesTotal
}

// SweepDuration exposes the sweep duration histogram.
func SweepDuration() prometheus.Histogram {
	RegisterMetrics()
	return sweepDuration
}

// Actions exposes the admin action outcome counter.
func Actions() *prometheus.CounterVec {
	RegisterMetrics()
	return actionsTotal
}

// AuthorityLatency exposes the licensing authority latency histogram.
func AuthorityLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return authorityLatency
}
