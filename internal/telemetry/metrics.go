package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RemindersScheduled = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_scheduled_total", Help: "Reminder jobs enqueued"})
	RemindersDuplicate = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_duplicate_total", Help: "Schedule requests that matched an existing reminder job"})
	RemindersCancelled = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_cancelled_total", Help: "Reminder jobs removed by their owner"})
	RateLimitRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	JobsCompleted      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queue_jobs_completed_total", Help: "Jobs completed successfully"}, []string{"type"})
	JobsRetried        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queue_jobs_retried_total", Help: "Jobs that failed and will retry"}, []string{"type"})
	JobsFailed         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queue_jobs_failed_total", Help: "Jobs that exhausted their attempts"}, []string{"type"})
	LeasesReclaimed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_leases_reclaimed_total", Help: "Active jobs returned to the wait list after their lease expired"})
	QueueDepth         = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "queue_jobs", Help: "Jobs per queue state"}, []string{"state"})
	InFlight           = prometheus.NewGauge(prometheus.GaugeOpts{Name: "queue_jobs_inflight", Help: "Jobs currently being processed by this worker"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RemindersScheduled,
			RemindersDuplicate,
			RemindersCancelled,
			RateLimitRejects,
			JobsCompleted,
			JobsRetried,
			JobsFailed,
			LeasesReclaimed,
			QueueDepth,
			InFlight,
		)
	})
	return promhttp.Handler()
}
