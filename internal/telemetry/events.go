package telemetry

import (
	"log/slog"
	"time"
)

// The Record functions pair a metric with a structured log event so producer
// and consumer failures are visible beyond the process console.

func RecordScheduled(jobID string, delay time.Duration, immediate bool) {
	RemindersScheduled.Inc()
	slog.Info("Reminder.schedule: job enqueued", "job_id", jobID, "delay", delay, "immediate", immediate)
}

func RecordDuplicate(jobID string) {
	RemindersDuplicate.Inc()
	slog.Info("Reminder.schedule: job already scheduled", "job_id", jobID)
}

func RecordCancelled(jobID, userID string) {
	RemindersCancelled.Inc()
	slog.Info("Reminder.cancel: job removed", "job_id", jobID, "user_id", userID)
}

func RecordRateLimited(key string) {
	RateLimitRejects.Inc()
	slog.Warn("RateLimit: request rejected", "key", key)
}

func RecordCompleted(jobID, jobType string, attempt int) {
	JobsCompleted.WithLabelValues(jobType).Inc()
	slog.Info("Processor: job completed", "job_id", jobID, "type", jobType, "attempt", attempt)
}

func RecordRetry(jobID, jobType string, attempt int, nextRun time.Time, reason error) {
	JobsRetried.WithLabelValues(jobType).Inc()
	slog.Warn("Processor: job failed, retry scheduled", "job_id", jobID, "type", jobType,
		"attempt", attempt, "next_run", nextRun.UTC().Format(time.RFC3339), "error", reason)
}

func RecordFailed(jobID, jobType string, attempt int, reason error) {
	JobsFailed.WithLabelValues(jobType).Inc()
	slog.Error("Processor: job failed permanently", "job_id", jobID, "type", jobType, "attempt", attempt, "error", reason)
}

func RecordReclaimed(ids []string) {
	LeasesReclaimed.Add(float64(len(ids)))
	slog.Warn("Processor: reclaimed expired leases", "count", len(ids), "job_ids", ids)
}
