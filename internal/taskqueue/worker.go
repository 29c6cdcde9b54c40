package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"giftclub/internal/types"
)

// WorkerConfig tunes a Worker. Zero fields fall back to defaults.
type WorkerConfig struct {
	Retry RetryPolicy
	// Lease is how long a claim stays exclusive. It must outlast JobTimeout.
	Lease        time.Duration
	JobTimeout   time.Duration
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Retry.Backoff <= 0 {
		c.Retry.Backoff = DefaultRetryPolicy.Backoff
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.Lease <= c.JobTimeout {
		c.Lease = 4 * c.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	return c
}

// Worker claims and executes jobs.
type Worker struct {
	store      JobStore
	dispatcher Dispatcher
	metrics    JobMetrics
	clock      types.Clock
	logger     types.Logger
	cfg        WorkerConfig

	mu       sync.RWMutex
	handlers map[types.JobAction]Handler
}

// NewWorker creates a Worker. Handlers are added with Register.
func NewWorker(store JobStore, dispatcher Dispatcher, metrics JobMetrics, clock types.Clock, logger types.Logger, cfg WorkerConfig) *Worker {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Worker{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		handlers:   make(map[types.JobAction]Handler),
	}
}

// Register binds a handler to an action, replacing any previous one.
func (w *Worker) Register(action types.JobAction, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[action] = h
}

func (w *Worker) handler(action types.JobAction) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[action]
	return h, ok
}

// Process claims and runs a single job. A job that is not claimable (done,
// not yet due, or leased elsewhere) is skipped without error. The returned
// error reports bookkeeping failures only; handler failures are recorded on
// the job.
func (w *Worker) Process(ctx context.Context, jobID int64) error {
	job, err := w.store.Claim(ctx, jobID, w.clock.Now(), w.cfg.Lease)
	if err != nil {
		return fmt.Errorf("claim job %d: %w", jobID, err)
	}
	if job == nil {
		w.logger.Info("job not claimable, skipping", "job_id", jobID)
		return nil
	}
	_, err = w.execute(ctx, job)
	return err
}

// ProcessDue claims a batch of due jobs, including those whose lease
// expired, and runs them concurrently. It returns how many jobs were run.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	return w.processDueAt(ctx, w.clock.Now())
}

// ProcessDueBefore is ProcessDue for jobs due at or before cutoff. The
// sweeper passes a cutoff in the past so that jobs whose wake-up message is
// merely in flight are left to it.
func (w *Worker) ProcessDueBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return w.processDueAt(ctx, cutoff)
}

func (w *Worker) processDueAt(ctx context.Context, at time.Time) (int, error) {
	jobs, err := w.store.ClaimDue(ctx, at, w.leaseFrom(at), w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			_, err := w.execute(ctx, job)
			return err
		})
	}
	return len(jobs), g.Wait()
}

// leaseFrom keeps lease expiry anchored to the real clock when the claim
// cutoff lies in the past.
func (w *Worker) leaseFrom(at time.Time) time.Duration {
	return w.cfg.Lease + w.clock.Now().Sub(at)
}

// Run polls for due jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := w.ProcessDue(ctx)
		if err != nil {
			w.logger.Error("processing due jobs failed", "error", err.Error())
		} else if n > 0 {
			w.logger.Info("processed due jobs", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// execute runs a claimed job and records its outcome.
func (w *Worker) execute(ctx context.Context, job *types.Job) (Result, error) {
	start := w.clock.Now()
	w.metrics.RecordQueueLag(ctx, start.Sub(job.NextRetryAt))

	logger := w.logger.With(
		"job_id", job.ID,
		"user_id", job.UserID,
		"action", string(job.Action),
		"attempt", job.Attempts,
	)

	var runErr error
	h, ok := w.handler(job.Action)
	if !ok {
		runErr = Rejectf("no handler registered for action %q", job.Action)
	} else {
		runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
		runErr = h.Handle(runCtx, job)
		cancel()
	}

	now := w.clock.Now()
	w.metrics.RecordLatency(ctx, job.Action, now.Sub(start))

	var (
		result   Result
		storeErr error
	)
	switch {
	case runErr == nil:
		result = ResultDone
		storeErr = w.store.Complete(ctx, job.ID, now)

	case IsPermanent(runErr):
		result = ResultRejected
		logger.Warn("job rejected", "reason", runErr.Error())
		storeErr = w.store.Reject(ctx, job.ID, runErr.Error(), now)

	case w.cfg.Retry.Exhausted(job.Attempts):
		result = ResultFailed
		logger.Error("job failed, retries exhausted",
			"max_retries", w.cfg.Retry.MaxRetries,
			"error", runErr.Error(),
		)
		storeErr = w.store.Fail(ctx, job.ID, runErr.Error(), now)

	default:
		result = ResultRetried
		next := now.Add(w.cfg.Retry.Backoff)
		logger.Warn("job failed, will retry",
			"next_retry_at", next.Format(time.RFC3339),
			"error", runErr.Error(),
		)
		storeErr = w.store.Reschedule(ctx, job.ID, next, runErr.Error(), now)
		if storeErr == nil {
			if err := w.dispatcher.Dispatch(ctx, job.ID, w.cfg.Retry.Backoff); err != nil {
				logger.Warn("retry dispatch failed, leaving it to the sweeper", "error", err.Error())
			}
		}
	}

	w.metrics.RecordOutcome(ctx, job.Action, result)
	if storeErr != nil {
		return result, fmt.Errorf("record %s outcome for job %d: %w", result, job.ID, storeErr)
	}
	return result, nil
}
