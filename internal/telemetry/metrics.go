package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmittedCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "lectures_submitted_total", Help: "Tasks accepted by the submission API"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "lectures_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	PipelineCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "lectures_completed_total", Help: "Pipeline runs that reached completed"})
	PipelineFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "lectures_failed_total", Help: "Pipeline runs that ended failed"})
	LeasesReclaimed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "lectures_leases_reclaimed_total", Help: "Work items whose visibility lease expired"})
	DeadLettered      = prometheus.NewCounter(prometheus.CounterOpts{Name: "lectures_dead_lettered_total", Help: "Work items moved to the dead-letter list"})
	QueueDepthGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "lectures_queue_depth", Help: "Ready queue depth"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "lectures_inflight", Help: "Work items currently leased"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lectures_stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"stage"})
)

// Handler exposes /metrics with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmittedCounter,
			RateLimitRejects,
			PipelineCompleted,
			PipelineFailed,
			LeasesReclaimed,
			DeadLettered,
			QueueDepthGauge,
			InFlightGauge,
			StageDuration,
		)
	})
	return promhttp.Handler()
}
