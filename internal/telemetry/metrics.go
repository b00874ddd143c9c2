package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued        = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_enqueued_total", Help: "Total jobs accepted at intake"})
	JobsCompleted       = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs that reached done"})
	JobsFailed          = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs that reached error"})
	WebhookFailures     = prometheus.NewCounter(prometheus.CounterOpts{Name: "webhook_failures_total", Help: "Webhook deliveries that failed"})
	RecordWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "record_write_failures_total", Help: "Job record writes that failed"})
	QueueDepthGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_queue_depth", Help: "Entries waiting in the task queue"})
	InFlightGauge       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_inflight", Help: "Jobs currently executing"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			WebhookFailures,
			RecordWriteFailures,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
