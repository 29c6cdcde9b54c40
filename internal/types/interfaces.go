package types

import (
	"context"
	"time"
)

// SeasonRepository defines data access for seasons.
type SeasonRepository interface {
	// ListEligibleForMatch returns ids of seasons whose registration closed
	// before now and whose address match is unset, oldest first.
	ListEligibleForMatch(ctx context.Context, now time.Time) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*Season, error)
	// GetForUpdate loads the season and holds a row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Season, error)
	MarkMatched(ctx context.Context, id int64, at time.Time) error
	AdjustCounters(ctx context.Context, id int64, delta SeasonCounters) error
}

// ParticipantRepository defines data access for season participants.
type ParticipantRepository interface {
	ListBySeason(ctx context.Context, seasonID int64) ([]Participant, error)
	GetByID(ctx context.Context, id int64) (*Participant, error)
	GetBySeasonAndUser(ctx context.Context, seasonID, userID int64) (*Participant, error)
	// FindSanta returns the participant whose receiver is participantID,
	// or nil when nobody gives to them.
	FindSanta(ctx context.Context, participantID int64) (*Participant, error)
	Create(ctx context.Context, p *Participant) error
	Delete(ctx context.Context, id int64) error
	// SetReceivers replaces every receiver link of the season with the
	// given assignments.
	SetReceivers(ctx context.Context, seasonID int64, assignments []Assignment) error
	SetReceiver(ctx context.Context, giverID int64, receiverID *int64) error
	MarkShipped(ctx context.Context, id int64, at time.Time) error
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
}

// UserRepository defines data access for club members.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByHabrID(ctx context.Context, habrID int64) (*User, error)
	SetBanned(ctx context.Context, id int64, banned bool) error
	SetEmailAllowed(ctx context.Context, id int64, allowed bool) error
	SetLastChatNotification(ctx context.Context, id int64, at time.Time) error
}

// MessageRepository reads chat messages.
type MessageRepository interface {
	// CountUnread groups unread messages by recipient user, counting only
	// messages sent after the user's last chat notification (or after
	// now-lookback when the user was never notified).
	CountUnread(ctx context.Context, now time.Time, lookback time.Duration) ([]UnreadCount, error)
}

// EventRepository appends audit events.
type EventRepository interface {
	Record(ctx context.Context, e *Event) error
}

// RepositoryRegistry provides access to all repository instances bound to
// the same connection or transaction.
type RepositoryRegistry interface {
	Seasons() SeasonRepository
	Participants() ParticipantRepository
	Users() UserRepository
	Messages() MessageRepository
	Events() EventRepository
}

// TransactionManager provides transactional execution across repositories.
// fn's repositories are bound to the transaction; the transaction commits
// only when fn returns nil.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryRegistry) error) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the platform.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
