// Package taskqueue runs jobs that perform external side effects (platform
// notifications, emails, badge grants) at least once, asynchronously with
// respect to the request that produced them.
//
// Jobs live in a durable table. Submission inserts a pending row and sends a
// wake-up message through a Dispatcher; a Worker claims the row under a
// lease, runs the registered Handler and classifies the outcome:
//
//   - nil: the job is done.
//   - permanent (ErrRejected, revoked access, no usable address): the job is
//     rejected at once and never retried.
//   - anything else is transient: the job is rescheduled after a fixed
//     backoff until its retry budget runs out, then marked failed.
//
// Handlers must only notify about state that is already committed; a job may
// run more than once.
package taskqueue

import (
	"context"
	"time"

	"giftclub/internal/types"
)

// JobStore is the persistence the queue needs. *db.JobRepository implements
// it against PostgreSQL.
type JobStore interface {
	// Insert stores reqs as pending jobs due at now and returns their ids in
	// request order.
	Insert(ctx context.Context, reqs []types.JobRequest, now time.Time) ([]int64, error)

	// Claim leases one job if it is claimable and increments its attempt
	// counter. It returns nil without error when the job is not claimable.
	Claim(ctx context.Context, id int64, now time.Time, lease time.Duration) (*types.Job, error)

	// ClaimDue leases up to limit claimable jobs.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]types.Job, error)

	Complete(ctx context.Context, id int64, now time.Time) error
	Reject(ctx context.Context, id int64, reason string, now time.Time) error
	Fail(ctx context.Context, id int64, reason string, now time.Time) error
	Reschedule(ctx context.Context, id int64, nextRetryAt time.Time, reason string, now time.Time) error
}

// Dispatcher wakes a worker for a job, optionally after a delay. Delivery is
// best effort: the sweeper claims jobs whose wake-up message was lost.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID int64, delay time.Duration) error
}

// NopDispatcher drops wake-up messages. It is used when workers poll the
// job table instead of consuming a message queue.
type NopDispatcher struct{}

// Dispatch implements Dispatcher.
func (NopDispatcher) Dispatch(context.Context, int64, time.Duration) error { return nil }

// Handler executes one kind of job.
type Handler interface {
	Handle(ctx context.Context, job *types.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *types.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *types.Job) error { return f(ctx, job) }

// Result categorizes a job outcome for metrics and logs.
type Result string

const (
	ResultDone     Result = "done"
	ResultRejected Result = "rejected"
	ResultRetried  Result = "retried"
	ResultFailed   Result = "failed"
)

// JobMetrics abstracts the telemetry sink for job outcomes.
type JobMetrics interface {
	RecordOutcome(ctx context.Context, action types.JobAction, result Result)
	RecordLatency(ctx context.Context, action types.JobAction, d time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// NopMetrics discards all metrics.
type NopMetrics struct{}

func (NopMetrics) RecordOutcome(context.Context, types.JobAction, Result)        {}
func (NopMetrics) RecordLatency(context.Context, types.JobAction, time.Duration) {}
func (NopMetrics) RecordQueueLag(context.Context, time.Duration)                 {}

// RetryPolicy bounds transient retries. A job whose attempt count exceeds
// MaxRetries after a transient failure is marked failed.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy retries a transient failure three times, five minutes
// apart.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Backoff:    5 * time.Minute,
}

// Exhausted reports whether a job that has been attempted attempts times may
// not be retried again.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts > p.MaxRetries
}
