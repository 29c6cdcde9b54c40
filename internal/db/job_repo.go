package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"giftclub/internal/types"
)

// JobRepository provides data access for the durable jobs table behind the
// task queue. A job is claimable when it is pending and due, or when it is
// running but its lease has expired (the worker holding it died).
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, user_id, action, payload, status, attempts,
	next_retry_at, locked_until, last_error, created_at, updated_at`

const claimablePredicate = `((status = 'pending' AND next_retry_at <= $1)
	OR (status = 'running' AND locked_until < $1))`

func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		j      types.Job
		action string
		status string
	)
	err := row.Scan(
		&j.ID,
		&j.UserID,
		&action,
		&j.Payload,
		&status,
		&j.Attempts,
		&j.NextRetryAt,
		&j.LockedUntil,
		&j.LastError,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Action = types.JobAction(action)
	j.Status = types.JobStatus(status)
	return &j, nil
}

// Insert stores reqs as pending jobs due at now and returns their ids in
// request order.
func (r *JobRepository) Insert(ctx context.Context, reqs []types.JobRequest, now time.Time) ([]int64, error) {
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		var id int64
		err := r.db.QueryRow(ctx,
			`INSERT INTO jobs (user_id, action, payload, status, attempts, next_retry_at, created_at, updated_at)
			 VALUES ($1, $2, $3, 'pending', 0, $4, $4, $4)
			 RETURNING id`,
			req.UserID,
			string(req.Action),
			[]byte(req.Payload),
			now,
		).Scan(&id)
		if err != nil {
			return ids, types.NewAppError(types.ErrCodeInternalDB, "failed to insert job", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetByID retrieves a job.
func (r *JobRepository) GetByID(ctx context.Context, id int64) (*types.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve job", err)
	}
	return j, nil
}

// Claim atomically takes the lease on one job, incrementing its attempt
// counter. It returns nil without error when the job is not claimable: it
// is finished, not yet due, or leased by another worker.
func (r *JobRepository) Claim(ctx context.Context, id int64, now time.Time, lease time.Duration) (*types.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx,
		`UPDATE jobs
		 SET status = 'running', attempts = attempts + 1, locked_until = $2, updated_at = $1
		 WHERE id = $3 AND `+claimablePredicate+`
		 RETURNING `+jobColumns,
		now,
		now.Add(lease),
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim job", err)
	}
	return j, nil
}

// ClaimDue leases up to limit claimable jobs, oldest due first. Rows locked
// by a concurrent claimer are skipped rather than waited on.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]types.Job, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE jobs
		 SET status = 'running', attempts = attempts + 1, locked_until = $2, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM jobs
		   WHERE `+claimablePredicate+`
		   ORDER BY next_retry_at, id
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		now,
		now.Add(lease),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim due jobs", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating claimed jobs", err)
	}
	return jobs, nil
}

// Complete marks a running job done.
func (r *JobRepository) Complete(ctx context.Context, id int64, now time.Time) error {
	return r.finish(ctx, id, types.JobStatusDone, nil, now)
}

// Reject marks a running job rejected; it will never run again.
func (r *JobRepository) Reject(ctx context.Context, id int64, reason string, now time.Time) error {
	return r.finish(ctx, id, types.JobStatusRejected, &reason, now)
}

// Fail marks a running job failed after its retry budget ran out.
func (r *JobRepository) Fail(ctx context.Context, id int64, reason string, now time.Time) error {
	return r.finish(ctx, id, types.JobStatusFailed, &reason, now)
}

func (r *JobRepository) finish(ctx context.Context, id int64, status types.JobStatus, reason *string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $2, last_error = $3, locked_until = NULL, updated_at = $4
		 WHERE id = $1 AND status = 'running'`,
		id,
		string(status),
		reason,
		now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job is not running", nil)
	}
	return nil
}

// Reschedule returns a running job to pending, due at nextRetryAt.
func (r *JobRepository) Reschedule(ctx context.Context, id int64, nextRetryAt time.Time, reason string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = 'pending', next_retry_at = $2, last_error = $3, locked_until = NULL, updated_at = $4
		 WHERE id = $1 AND status = 'running'`,
		id,
		nextRetryAt,
		reason,
		now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reschedule job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job is not running", nil)
	}
	return nil
}

// PurgeFinished deletes terminal jobs last updated before cutoff.
func (r *JobRepository) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM jobs
		 WHERE status IN ('done', 'rejected', 'failed') AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge finished jobs", err)
	}
	return tag.RowsAffected(), nil
}
