package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"giftclub/internal/outbox"
	"giftclub/internal/types"
)

// ChatLookback bounds how far back unread messages count for users who have
// never been notified.
const ChatLookback = 60 * 24 * time.Hour

// UnitOfWork runs fn in a transaction with an outbox buffer attached.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error) error
}

// ChatDigest tells members about chat messages they have not read yet.
type ChatDigest struct {
	uow    UnitOfWork
	logger *slog.Logger
}

// NewChatDigest creates a ChatDigest.
func NewChatDigest(uow UnitOfWork, logger *slog.Logger) *ChatDigest {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatDigest{uow: uow, logger: logger}
}

// Run queues a notification and an email for every user with unread
// messages sent after their last chat notification, and moves that
// watermark to now. Counting, queueing and the watermark update commit
// together, so a failed run notifies nobody and is simply repeated.
//
// Returns the number of users notified.
func (d *ChatDigest) Run(ctx context.Context, now time.Time) (int, error) {
	var notified int
	err := d.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		notified = 0
		counts, err := repos.Messages().CountUnread(ctx, now, ChatLookback)
		if err != nil {
			return fmt.Errorf("counting unread messages: %w", err)
		}

		for _, c := range counts {
			if c.Count <= 0 {
				continue
			}
			noun := RussianPlural(c.Count, "новое сообщение", "новых сообщения", "новых сообщений")
			box.Notify(c.UserID, fmt.Sprintf("Вам прислали <b>%d</b> %s - не тяните с прочтением, наверняка там что-то важное!", c.Count, noun))
			box.Email(c.UserID,
				fmt.Sprintf("у вас %d %s", c.Count, noun),
				fmt.Sprintf("Приветствуем!\n\nВам прислали %d %s - не тяните с прочтением, наверняка там что-то важное!", c.Count, noun),
			)
			if err := repos.Users().SetLastChatNotification(ctx, c.UserID, now); err != nil {
				return fmt.Errorf("advancing chat watermark for user %d: %w", c.UserID, err)
			}
			notified++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if notified == 0 {
		d.logger.InfoContext(ctx, "nobody has new chat messages")
	} else {
		d.logger.InfoContext(ctx, "chat digest queued", "users", notified)
	}
	return notified, nil
}

// RussianPlural picks the noun form for n: one (1, 21, 101), few (2-4,
// 22-24) or many (0, 5-20, 25-30, 111-114).
func RussianPlural(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	mod10, mod100 := n%10, n%100
	switch {
	case mod10 == 1 && mod100 != 11:
		return one
	case mod10 >= 2 && mod10 <= 4 && (mod100 < 10 || mod100 >= 20):
		return few
	default:
		return many
	}
}
