package taskqueue

import (
	"context"
	"fmt"

	"giftclub/internal/types"
)

// Queue is the submission side of the task queue.
type Queue struct {
	store      JobStore
	dispatcher Dispatcher
	clock      types.Clock
	logger     types.Logger
}

// NewQueue creates a Queue. A nil dispatcher means workers poll.
func NewQueue(store JobStore, dispatcher Dispatcher, clock types.Clock, logger types.Logger) *Queue {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	return &Queue{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// Submit persists reqs as pending jobs and wakes a worker for each. It
// returns the job ids in request order.
//
// Only the insert can fail the call. A failed wake-up is logged and left to
// the sweeper, since the job row is already durable.
func (q *Queue) Submit(ctx context.Context, reqs ...types.JobRequest) ([]int64, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	ids, err := q.store.Insert(ctx, reqs, q.clock.Now())
	if err != nil {
		return ids, fmt.Errorf("submit jobs: %w", err)
	}

	for i, id := range ids {
		if err := q.dispatcher.Dispatch(ctx, id, 0); err != nil {
			q.logger.Warn("job wake-up dispatch failed, leaving it to the sweeper",
				"job_id", id,
				"action", string(reqs[i].Action),
				"error", err.Error(),
			)
		}
	}
	return ids, nil
}
