package worker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/queue"
	"vaccine-tracker/internal/telemetry"
)

// ErrAlreadyRunning is returned when Run is called on a processor that is already consuming.
var ErrAlreadyRunning = errors.New("processor already running")

// Handler executes a job for a given type.
type Handler func(ctx context.Context, job models.Job) error

// Processor consumes due jobs from the queue with a bounded number of
// concurrent handlers. Construct one per process and share it.
type Processor struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	handlers map[string]Handler
	workerID string
	running  atomic.Bool
}

// NewProcessor creates a processor; workerID only labels log lines.
func NewProcessor(cfg config.Config, q *queue.RedisQueue, workerID string) *Processor {
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.WorkerPollInterval <= 0 {
		cfg.WorkerPollInterval = time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.ScheduledBatchSize <= 0 {
		cfg.ScheduledBatchSize = 100
	}
	return &Processor{
		cfg:      cfg,
		queue:    q,
		handlers: make(map[string]Handler),
		workerID: workerID,
	}
}

// RegisterHandler binds a handler to a job type. Call before Run.
func (p *Processor) RegisterHandler(jobType string, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	p.handlers[jobType] = handler
}

// Run blocks until ctx is cancelled. It promotes due delayed jobs, reclaims
// expired leases and runs up to WorkerConcurrency handlers at once.
func (p *Processor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	slog.Info("Processor.Run: starting", "worker_id", p.workerID, "concurrency", p.cfg.WorkerConcurrency,
		"visibility", p.cfg.VisibilityTimeout, "backoff_initial", p.cfg.BackoffInitial)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.maintain(ctx)
		return nil
	})
	for i := 0; i < p.cfg.WorkerConcurrency; i++ {
		g.Go(func() error {
			p.consume(ctx)
			return nil
		})
	}
	err := g.Wait()
	slog.Info("Processor.Run: stopped", "worker_id", p.workerID)
	return err
}

func (p *Processor) maintain(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.WorkerPollInterval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	now := time.Now()
	if _, err := p.queue.PromoteDelayed(ctx, now, int64(p.cfg.ScheduledBatchSize)); err != nil && ctx.Err() == nil {
		slog.Error("Processor.tick: promote failed", "error", err)
	}
	reclaimed, err := p.queue.RequeueExpired(ctx, now, int64(p.cfg.ScheduledBatchSize))
	if err != nil && ctx.Err() == nil {
		slog.Error("Processor.tick: requeue expired failed", "error", err)
	}
	if len(reclaimed) > 0 {
		telemetry.RecordReclaimed(reclaimed)
	}
	if counts, err := p.queue.Counts(ctx); err == nil {
		for state, n := range counts {
			telemetry.QueueDepth.WithLabelValues(string(state)).Set(float64(n))
		}
	}
}

func (p *Processor) consume(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := p.queue.DequeueWithLease(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Processor.consume: dequeue failed", "error", err)
			}
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}
		// Finish bookkeeping for a job already in hand even when shutting down.
		p.process(context.WithoutCancel(ctx), *job)
	}
}

func (p *Processor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.WorkerPollInterval):
	}
}

// process runs one leased job and records the outcome in the queue.
func (p *Processor) process(ctx context.Context, job models.Job) {
	telemetry.InFlight.Inc()
	defer telemetry.InFlight.Dec()

	handler, ok := p.handlers[job.Type]
	if !ok {
		slog.Warn("Processor.process: no handler for job type, skipping", "job_id", job.ID, "type", job.Type)
		if _, err := p.queue.Complete(ctx, job.ID); err != nil {
			slog.Error("Processor.process: complete failed", "job_id", job.ID, "error", err)
		}
		return
	}

	// The heartbeat keeps the lease alive, so a handler may outlive one
	// visibility window; JobTimeout bounds it instead.
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	stopHeartbeat := p.heartbeat(runCtx, job.ID)
	err := handler(runCtx, job)
	stopHeartbeat()
	cancel()

	if err == nil {
		ok, cerr := p.queue.Complete(ctx, job.ID)
		switch {
		case cerr != nil:
			slog.Error("Processor.process: complete failed", "job_id", job.ID, "error", cerr)
		case !ok:
			slog.Warn("Processor.process: job no longer active after success", "job_id", job.ID)
		default:
			telemetry.RecordCompleted(job.ID, job.Type, job.AttemptsMade)
		}
		return
	}

	if job.AttemptsMade >= job.MaxAttempts {
		if _, ferr := p.queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
			slog.Error("Processor.process: mark failed", "job_id", job.ID, "error", ferr)
		}
		telemetry.RecordFailed(job.ID, job.Type, job.AttemptsMade, err)
		return
	}

	nextRun := time.Now().Add(backoff(p.cfg.BackoffInitial, p.cfg.BackoffMax, job.AttemptsMade))
	if _, rerr := p.queue.Retry(ctx, job.ID, err.Error(), nextRun); rerr != nil {
		slog.Error("Processor.process: schedule retry", "job_id", job.ID, "error", rerr)
	}
	telemetry.RecordRetry(job.ID, job.Type, job.AttemptsMade, nextRun, err)
}

// heartbeat extends the lease on jobID every half visibility timeout until the
// returned stop function is called.
func (p *Processor) heartbeat(ctx context.Context, jobID string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.VisibilityTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.ExtendLease(ctx, jobID, p.cfg.VisibilityTimeout); err != nil && ctx.Err() == nil {
					slog.Warn("Processor.heartbeat: extend lease failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// backoff doubles base for each attempt after the first, capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	wait := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}
