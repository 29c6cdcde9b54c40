package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"giftclub/internal/types"
)

// --- Test Helpers ---

type logEntry struct {
	level string
	msg   string
}

// recordingLogger collects log entries across With-derived children.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg) }
func (l *recordingLogger) With(args ...any) types.Logger { return l }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range *l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory JobStore with the same claim rules as the
// PostgreSQL repository.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	jobs      map[int64]*types.Job
	insertErr error
	finishErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[int64]*types.Job)}
}

func (s *memStore) Insert(_ context.Context, reqs []types.JobRequest, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		s.nextID++
		s.jobs[s.nextID] = &types.Job{
			ID:          s.nextID,
			UserID:      r.UserID,
			Action:      r.Action,
			Payload:     r.Payload,
			Status:      types.JobStatusPending,
			NextRetryAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		ids = append(ids, s.nextID)
	}
	return ids, nil
}

func claimable(j *types.Job, now time.Time) bool {
	switch j.Status {
	case types.JobStatusPending:
		return !j.NextRetryAt.After(now)
	case types.JobStatusRunning:
		return j.LockedUntil != nil && j.LockedUntil.Before(now)
	}
	return false
}

func (s *memStore) lease(j *types.Job, now time.Time, lease time.Duration) types.Job {
	until := now.Add(lease)
	j.Status = types.JobStatusRunning
	j.Attempts++
	j.LockedUntil = &until
	j.UpdatedAt = now
	return *j
}

func (s *memStore) Claim(_ context.Context, id int64, now time.Time, lease time.Duration) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !claimable(j, now) {
		return nil, nil
	}
	claimed := s.lease(j, now, lease)
	return &claimed, nil
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, j := range s.jobs {
		if claimable(j, now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]types.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.lease(s.jobs[id], now, lease))
	}
	return out, nil
}

func (s *memStore) finish(id int64, status types.JobStatus, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	j, ok := s.jobs[id]
	if !ok || j.Status != types.JobStatusRunning {
		return errors.New("job is not running")
	}
	j.Status = status
	j.LockedUntil = nil
	j.UpdatedAt = now
	if reason != "" {
		j.LastError = &reason
	}
	return nil
}

func (s *memStore) Complete(_ context.Context, id int64, now time.Time) error {
	return s.finish(id, types.JobStatusDone, "", now)
}

func (s *memStore) Reject(_ context.Context, id int64, reason string, now time.Time) error {
	return s.finish(id, types.JobStatusRejected, reason, now)
}

func (s *memStore) Fail(_ context.Context, id int64, reason string, now time.Time) error {
	return s.finish(id, types.JobStatusFailed, reason, now)
}

func (s *memStore) Reschedule(_ context.Context, id int64, next time.Time, reason string, now time.Time) error {
	if err := s.finish(id, types.JobStatusPending, reason, now); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].NextRetryAt = next
	return nil
}

func (s *memStore) get(id int64) types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

// dispatchCall records one Dispatch invocation.
type dispatchCall struct {
	jobID int64
	delay time.Duration
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID int64, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{jobID: jobID, delay: delay})
	return d.err
}

// fakeMetrics counts outcomes.
type fakeMetrics struct {
	mu       sync.Mutex
	outcomes map[Result]int
}

func (m *fakeMetrics) RecordOutcome(_ context.Context, _ types.JobAction, r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[Result]int)
	}
	m.outcomes[r]++
}

func (m *fakeMetrics) RecordLatency(context.Context, types.JobAction, time.Duration) {}
func (m *fakeMetrics) RecordQueueLag(context.Context, time.Duration)                 {}

// httpStatusError mimics an upstream failure with a status code.
func httpStatusError(code int) error {
	if code == 401 {
		return types.NewAppError(types.ErrCodeUpstreamUnauthorized, "platform rejected token", nil)
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("platform returned %d", code), nil)
}
