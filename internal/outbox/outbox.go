// Package outbox binds job submission to transaction commit. Business
// operations record notifications in a Buffer while their unit of work runs;
// the Runner submits them to the task queue only after the transaction
// commits, in call order. A rolled back unit of work submits nothing.
package outbox

import (
	"context"
	"encoding/json"

	"giftclub/internal/types"
)

// Submitter accepts jobs for asynchronous execution. *taskqueue.Queue
// implements it.
type Submitter interface {
	Submit(ctx context.Context, reqs ...types.JobRequest) ([]int64, error)
}

// Buffer accumulates job requests for one unit of work. Its methods only
// append; nothing leaves the process until the Runner flushes it.
type Buffer struct {
	reqs []types.JobRequest
}

// Notify queues a platform notification to userID.
func (b *Buffer) Notify(userID int64, message string) {
	b.add(userID, types.JobActionNotify, types.NotifyPayload{Message: message})
}

// Email queues a transactional email to userID.
func (b *Buffer) Email(userID int64, subject, body string) {
	b.add(userID, types.JobActionEmail, types.EmailPayload{Subject: subject, Body: body})
}

// GrantBadge queues a club badge grant for userID, earned in seasonID.
func (b *Buffer) GrantBadge(userID, seasonID int64) {
	b.add(userID, types.JobActionGrantBadge, types.BadgePayload{SeasonID: seasonID})
}

func (b *Buffer) add(userID int64, action types.JobAction, payload any) {
	// The payload types are plain structs of strings and integers.
	raw, _ := json.Marshal(payload)
	b.reqs = append(b.reqs, types.JobRequest{
		UserID:  userID,
		Action:  action,
		Payload: raw,
	})
}

// Len returns the number of buffered requests.
func (b *Buffer) Len() int { return len(b.reqs) }

// Requests returns a copy of the buffered requests in call order.
func (b *Buffer) Requests() []types.JobRequest {
	out := make([]types.JobRequest, len(b.reqs))
	copy(out, b.reqs)
	return out
}

// Runner executes units of work with an attached Buffer.
type Runner struct {
	tx     types.TransactionManager
	queue  Submitter
	logger types.Logger
}

// NewRunner creates a Runner.
func NewRunner(tx types.TransactionManager, queue Submitter, logger types.Logger) *Runner {
	return &Runner{
		tx:     tx,
		queue:  queue,
		logger: logger,
	}
}

// RunInTx runs fn inside a transaction with a fresh Buffer. If fn or the
// commit fails the buffer is discarded and the error is returned. After a
// successful commit the buffered requests are submitted in call order;
// submission failures are logged and never reported as an error, because
// the business change is already committed.
//
// The transaction manager may replay fn after a serialization conflict. Each
// attempt gets a new Buffer, so only the committed attempt's requests are
// submitted.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry, box *Buffer) error) error {
	var box *Buffer
	err := r.tx.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		box = &Buffer{}
		return fn(ctx, repos, box)
	})
	if err != nil {
		return err
	}

	// The commit already happened; a caller giving up now must not stop
	// the jobs from being recorded.
	r.flush(context.WithoutCancel(ctx), box)
	return nil
}

func (r *Runner) flush(ctx context.Context, box *Buffer) {
	if box == nil {
		return
	}
	for i, req := range box.reqs {
		if _, err := r.queue.Submit(ctx, req); err != nil {
			r.logger.Error("outbox flush failed for job request",
				"position", i,
				"user_id", req.UserID,
				"action", string(req.Action),
				"error", err.Error(),
			)
		}
	}
}
