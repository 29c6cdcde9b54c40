package notify

import (
	"context"
	"fmt"

	"giftclub/internal/taskqueue"
	"giftclub/internal/types"
)

// PlatformNotifier delivers JobActionNotify jobs as Habr notifications.
type PlatformNotifier struct {
	users    UserReader
	platform Platform
	logger   types.Logger
}

// NewPlatformNotifier creates a PlatformNotifier.
func NewPlatformNotifier(users UserReader, platform Platform, logger types.Logger) *PlatformNotifier {
	return &PlatformNotifier{users: users, platform: platform, logger: logger}
}

// Handle implements taskqueue.Handler.
func (n *PlatformNotifier) Handle(ctx context.Context, job *types.Job) error {
	var payload types.NotifyPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}

	user, err := n.users.GetByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if user.PlatformToken.IsEmpty() {
		return taskqueue.Rejectf("platform token of user %q is unknown", user.Login)
	}

	if err := n.platform.SendNotification(ctx, user.PlatformToken, payload.Message); err != nil {
		if types.HasCode(err, types.ErrCodeUpstreamUnauthorized) {
			return taskqueue.Reject(fmt.Errorf("user %q revoked platform access: %w", user.Login, err))
		}
		return fmt.Errorf("send notification to %q: %w", user.Login, err)
	}

	n.logger.Info("platform notification sent", "job_id", job.ID, "login", user.Login)
	return nil
}

// BadgeGranter delivers JobActionGrantBadge jobs.
type BadgeGranter struct {
	users    UserReader
	platform Platform
	logger   types.Logger
}

// NewBadgeGranter creates a BadgeGranter.
func NewBadgeGranter(users UserReader, platform Platform, logger types.Logger) *BadgeGranter {
	return &BadgeGranter{users: users, platform: platform, logger: logger}
}

// Handle implements taskqueue.Handler. Granting a badge the user already
// holds succeeds, so a replayed job is harmless.
func (b *BadgeGranter) Handle(ctx context.Context, job *types.Job) error {
	var payload types.BadgePayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}

	user, err := b.users.GetByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load badge recipient: %w", err)
	}

	if err := b.platform.GrantBadge(ctx, user.Login); err != nil {
		if types.HasCode(err, types.ErrCodeUpstreamUnauthorized) || types.HasCode(err, types.ErrCodeUpstreamRejected) {
			return taskqueue.Reject(fmt.Errorf("badge grant refused for %q: %w", user.Login, err))
		}
		return fmt.Errorf("grant badge to %q: %w", user.Login, err)
	}

	b.logger.Info("club badge granted", "job_id", job.ID, "login", user.Login, "season_id", payload.SeasonID)
	return nil
}
