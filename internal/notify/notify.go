// Package notify implements the task queue handlers that carry a club event
// to a member: a platform notification, a transactional email, or a badge
// grant on the member's platform profile.
//
// Handlers read the recipient at execution time and never change club
// state. Conditions that cannot improve on retry (no token, no address,
// opted out, revoked access) are returned as rejections; everything else is
// left to the queue's retry policy.
package notify

import (
	"context"
	"encoding/json"

	"giftclub/internal/taskqueue"
	"giftclub/internal/types"
)

// UserReader loads the recipient of a job.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*types.User, error)
}

// Platform is the subset of the Habr API the handlers call.
// *external.HabrClient implements it.
type Platform interface {
	SendNotification(ctx context.Context, token types.SecretString, message string) error
	GrantBadge(ctx context.Context, login string) error
}

// EmailSender transmits a rendered email and returns the provider message
// id. Addresses the provider refuses are reported as email_blocked.
type EmailSender interface {
	Send(ctx context.Context, msg types.EmailMessage) (string, error)
}

// Registrar binds handlers to job actions. *taskqueue.Worker implements it.
type Registrar interface {
	Register(action types.JobAction, h taskqueue.Handler)
}

// Register binds the three handlers to their actions.
func Register(r Registrar, n *PlatformNotifier, m *Mailer, b *BadgeGranter) {
	r.Register(types.JobActionNotify, n)
	r.Register(types.JobActionEmail, m)
	r.Register(types.JobActionGrantBadge, b)
}

func decodePayload(job *types.Job, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidPayload, "malformed job payload", err).
			WithDetails(map[string]any{"job_id": job.ID, "action": string(job.Action)})
	}
	return nil
}
