// Package scheduler implements the periodic club tasks invoked by the
// scheduler Lambda: season matching, the unread chat digest and the job
// queue sweep.
package scheduler

import "time"

// TaskType identifies which scheduled task a payload asks for.
type TaskType string

const (
	TaskMatchSeasons TaskType = "match_seasons"
	TaskChatDigest   TaskType = "chat_digest"
	TaskSweepJobs    TaskType = "sweep_jobs"
)

// MaintenancePayload is the JSON payload an EventBridge rule sends to the
// scheduler function:
//
//	{
//	  "task": "chat_digest",
//	  "reference_time": "2026-12-20T03:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual runs. If nil, the current
	// UTC time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
