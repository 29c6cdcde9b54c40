package types

import (
	"encoding/json"
	"time"
)

// JobAction is the kind of external side effect a job performs.
type JobAction string

const (
	JobActionNotify     JobAction = "notify"
	JobActionEmail      JobAction = "email"
	JobActionGrantBadge JobAction = "grant_badge"
)

// JobStatus is the lifecycle state of a row in the jobs table.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusRejected JobStatus = "rejected"
	JobStatusFailed   JobStatus = "failed"
)

// IsTerminal reports whether no further attempt will be made.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusRejected || s == JobStatusFailed
}

// JobRequest is a unit of work submitted to the task queue.
type JobRequest struct {
	UserID  int64
	Action  JobAction
	Payload json.RawMessage
}

// Job is a persisted JobRequest with its execution bookkeeping.
type Job struct {
	ID          int64
	UserID      int64
	Action      JobAction
	Payload     json.RawMessage
	Status      JobStatus
	Attempts    int
	NextRetryAt time.Time
	LockedUntil *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NotifyPayload is the payload of a JobActionNotify job.
type NotifyPayload struct {
	Message string `json:"message"`
}

// EmailPayload is the payload of a JobActionEmail job. Body is plain text;
// the unsubscribe footer is appended at delivery time.
type EmailPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BadgePayload is the payload of a JobActionGrantBadge job.
type BadgePayload struct {
	SeasonID int64 `json:"season_id,omitempty"`
}

// JobMessage is the body of the queue message that wakes a worker for a job.
type JobMessage struct {
	JobID int64 `json:"job_id"`
}

// EmailMessage is a fully rendered email handed to an email transport.
type EmailMessage struct {
	To       string
	ToName   string
	From     string
	FromName string
	Subject  string
	BodyText string
	// Headers are extra RFC 5322 headers (Message-ID, Reply-To,
	// List-Unsubscribe).
	Headers map[string]string
	// ReferenceID correlates provider callbacks with the job.
	ReferenceID string
}
