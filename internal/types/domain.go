package types

import (
	"time"
)

// MinKarma is the karma a platform user needs to join the club unless they
// already hold the club badge.
const MinKarma = 7.0

// User is a club member mirrored from the platform account.
type User struct {
	ID     int64
	Login  string
	HabrID int64
	// Email is nil until the platform shares an address.
	Email        *string
	EmailAllowed bool
	// EmailToken authenticates unsubscribe links.
	EmailToken SecretString
	// PlatformToken is the OAuth token used for platform notifications;
	// empty when unknown or revoked.
	PlatformToken        SecretString
	IsBanned             bool
	LastChatNotification *time.Time
	CreatedAt            time.Time
}

// HasEmail reports whether the user has a usable address on file.
func (u *User) HasEmail() bool {
	return u.Email != nil && *u.Email != ""
}

// Season is one matching round and the aggregate root of its participants.
type Season struct {
	ID                int64
	RegistrationOpen  time.Time
	RegistrationClose time.Time
	SeasonClose       time.Time
	// AddressMatch is nil until the season has been matched.
	AddressMatch   *time.Time
	MemberCount    int
	ShippedCount   int
	DeliveredCount int
}

// Validate checks the chronological ordering of the season's timestamps.
func (s *Season) Validate() error {
	if s.RegistrationClose.Before(s.RegistrationOpen) {
		return NewAppError(ErrCodeValidationInvalidSeason, "registration must close after it opens", nil)
	}
	if s.SeasonClose.Before(s.RegistrationClose) {
		return NewAppError(ErrCodeValidationInvalidSeason, "season must close after registration closes", nil)
	}
	return nil
}

// IsMatched reports whether receivers have been assigned.
func (s *Season) IsMatched() bool {
	return s.AddressMatch != nil
}

// IsClosed reports whether the season is over at now.
func (s *Season) IsClosed(now time.Time) bool {
	return now.After(s.SeasonClose)
}

// IsRegistrationOpen reports whether members may enroll or cancel at now.
func (s *Season) IsRegistrationOpen(now time.Time) bool {
	if s.IsMatched() {
		return false
	}
	return !now.Before(s.RegistrationOpen) && now.Before(s.RegistrationClose)
}

// IsEligibleForMatch reports whether the matching engine may run at now.
func (s *Season) IsEligibleForMatch(now time.Time) bool {
	return !s.IsMatched() && s.RegistrationClose.Before(now)
}

// SeasonCounters holds deltas applied to a season's running counters.
type SeasonCounters struct {
	Members   int
	Shipped   int
	Delivered int
}

// Participant is a user's enrollment in one season.
type Participant struct {
	ID       int64
	SeasonID int64
	UserID   int64
	Fullname string
	Postcode string
	Address  string
	// Country is an ISO 3166-1 alpha-2 code, nil until provided.
	Country *string
	// ReceiverID is the participant this one gives a gift to.
	ReceiverID      *int64
	GiftShippedAt   *time.Time
	GiftDeliveredAt *time.Time
	CreatedAt       time.Time
}

// CountryCode returns the participant's country or "" when unset.
func (p *Participant) CountryCode() string {
	if p.Country == nil {
		return ""
	}
	return *p.Country
}

// Assignment is one giver to receiver link produced by matching.
type Assignment struct {
	GiverID    int64
	ReceiverID int64
}

// EnrollmentInput carries the postal details a member submits when enrolling.
type EnrollmentInput struct {
	Fullname string  `validate:"required,max=80"`
	Postcode string  `validate:"required,max=20"`
	Address  string  `validate:"required,max=200"`
	Country  *string `validate:"omitempty,len=2,uppercase"`
}

// Profile is the platform view of a user, fetched on demand.
type Profile struct {
	Login      string  `json:"login"`
	AvatarURL  string  `json:"avatar_url"`
	Karma      float64 `json:"karma"`
	HasBadge   bool    `json:"has_badge"`
	IsReadonly bool    `json:"is_readonly"`
}

// CanParticipate reports whether the platform account qualifies for the club.
// Banned users never qualify.
func (p *Profile) CanParticipate(banned bool) bool {
	if banned || p.IsReadonly {
		return false
	}
	return p.Karma >= MinKarma || p.HasBadge
}

// UnreadCount is the number of unread chat messages waiting for a user.
type UnreadCount struct {
	UserID int64
	Count  int
}

// EventType names an audited club action.
type EventType string

const (
	EventEnrolled      EventType = "enrolled"
	EventUnenrolled    EventType = "unenrolled"
	EventGiftShipped   EventType = "gift_shipped"
	EventGiftDelivered EventType = "gift_delivered"
	EventBanned        EventType = "banned"
	EventUnbanned      EventType = "unbanned"
	EventSubscribed    EventType = "subscribed"
	EventUnsubscribed  EventType = "unsubscribed"
)

// Event is an audit record. ActorID is the user who performed the action,
// SubjectID the user it was performed on (zero when the actor acted on
// themselves) and SeasonID is zero for account-level events.
type Event struct {
	ID        int64
	Type      EventType
	ActorID   int64
	SubjectID int64
	SeasonID  int64
	CreatedAt time.Time
}
