package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxSweepRounds bounds one sweep so the function finishes well inside its
// timeout; leftovers are picked up by the next run.
const maxSweepRounds = 20

// DueJobRunner claims and runs due jobs. *taskqueue.Worker implements it.
type DueJobRunner interface {
	ProcessDueBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// JobPurger deletes finished jobs. *db.JobRepository implements it.
type JobPurger interface {
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepConfig tunes a JobSweeper.
type SweepConfig struct {
	// Grace is how long a due job may wait for its wake-up message before
	// the sweeper runs it.
	Grace time.Duration
	// Retention is how long finished jobs are kept.
	Retention time.Duration
}

// JobSweeper runs jobs whose wake-up message was lost or whose lease
// expired, then purges old finished jobs.
type JobSweeper struct {
	runner DueJobRunner
	purger JobPurger
	cfg    SweepConfig
	logger *slog.Logger
}

// NewJobSweeper creates a JobSweeper.
func NewJobSweeper(runner DueJobRunner, purger JobPurger, cfg SweepConfig, logger *slog.Logger) *JobSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobSweeper{
		runner: runner,
		purger: purger,
		cfg:    cfg,
		logger: logger,
	}
}

// Sweep runs batches of jobs due before now-Grace until none are left or
// the round limit is hit, then purges finished jobs older than
// now-Retention. Returns the number of jobs run plus the number purged.
func (s *JobSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.Grace)

	ran := 0
	for round := 0; round < maxSweepRounds; round++ {
		n, err := s.runner.ProcessDueBefore(ctx, cutoff)
		ran += n
		if err != nil {
			return ran, fmt.Errorf("running stranded jobs: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if ran > 0 {
		s.logger.InfoContext(ctx, "ran stranded jobs",
			"count", ran,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}

	if s.cfg.Retention <= 0 {
		return ran, nil
	}
	purged, err := s.purger.PurgeFinished(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return ran, fmt.Errorf("purging finished jobs: %w", err)
	}
	if purged > 0 {
		s.logger.InfoContext(ctx, "purged finished jobs", "count", purged)
	}
	return ran + int(purged), nil
}
