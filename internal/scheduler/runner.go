package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"giftclub/internal/matching"
)

// lockTTL covers the Lambda timeout with margin.
const lockTTL = 15 * time.Minute

// SeasonMatcher matches all eligible seasons.
type SeasonMatcher interface {
	Run(ctx context.Context) (matching.Report, error)
}

// ChatDigester sends the unread chat digest.
type ChatDigester interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// Sweeper runs stranded jobs and purges finished ones.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Runner executes maintenance tasks under an hourly distributed lock and
// records each run in job history.
type Runner struct {
	Matcher    SeasonMatcher
	Digest     ChatDigester
	Sweeper    Sweeper
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	Logger     *slog.Logger
	Now        func() time.Time
}

// Handle runs the task named by payload. A task whose lock for the current
// hour is held elsewhere is skipped without error.
func (r *Runner) Handle(ctx context.Context, payload MaintenancePayload) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	now := r.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}
	task := string(payload.Task)
	logger = logger.With("task", task, "worker_id", r.WorkerID)
	logger.InfoContext(ctx, "scheduler invoked", "reference_time", now.Format(time.RFC3339))

	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := r.JobLock.Acquire(ctx, lockID, r.WorkerID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker, skipping", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	historyID, err := r.JobHistory.Start(ctx, task)
	if err != nil {
		// History is bookkeeping only; run the task anyway.
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		historyID = 0
	}

	items, execErr := r.dispatch(ctx, payload.Task, now)

	status := "success"
	if execErr != nil {
		status = "failed"
	}
	if historyID != 0 {
		if err := r.JobHistory.Finish(ctx, historyID, status, items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "history_id", historyID, "error", err)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "task failed", "error", execErr, "items_before_error", items)
		return "", fmt.Errorf("task %s failed: %w", task, execErr)
	}
	result := fmt.Sprintf("task %s complete: %d items processed", task, items)
	logger.InfoContext(ctx, result, "items", items)
	return result, nil
}

func (r *Runner) dispatch(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskMatchSeasons:
		report, err := r.Matcher.Run(ctx)
		return report.Count(matching.OutcomeMatched), err
	case TaskChatDigest:
		return r.Digest.Run(ctx, now)
	case TaskSweepJobs:
		return r.Sweeper.Sweep(ctx, now)
	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
