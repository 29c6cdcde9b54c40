// Package club implements the member and organizer actions of a season:
// enrollment, shipping and delivery marks, kicks, bans and email opt-outs.
//
// Every action is a single unit of work. Its state change, audit event and
// the notifications it produces commit together; the notifications are
// handed to the task queue only after the commit.
package club

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"giftclub/internal/outbox"
	"giftclub/internal/types"
)

// UnitOfWork runs fn in a transaction with an outbox buffer attached.
// *outbox.Runner implements it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error) error
}

// ProfileSource returns a member's platform profile.
// *external.ProfileService implements it.
type ProfileSource interface {
	Profile(ctx context.Context, login string) (*types.Profile, error)
}

// UserReader loads a user outside of a transaction.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*types.User, error)
}

// Service performs club actions.
type Service struct {
	uow      UnitOfWork
	users    UserReader
	profiles ProfileSource
	clock    types.Clock
	validate *validator.Validate
	siteURL  string
	logger   *slog.Logger
}

// Config holds Service dependencies.
type Config struct {
	UnitOfWork UnitOfWork
	// Users serves reads made before the transaction starts.
	Users    UserReader
	Profiles ProfileSource
	Clock    types.Clock
	SiteURL  string
	Logger   *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:      cfg.UnitOfWork,
		users:    cfg.Users,
		profiles: cfg.Profiles,
		clock:    cfg.Clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		siteURL:  cfg.SiteURL,
		logger:   logger,
	}
}

func (s *Service) profileURL(seasonID int64) string {
	return fmt.Sprintf("%s/%d/profile/", s.siteURL, seasonID)
}

func record(ctx context.Context, repos types.RepositoryRegistry, typ types.EventType, actorID, subjectID, seasonID int64) error {
	if subjectID == actorID {
		subjectID = 0
	}
	return repos.Events().Record(ctx, &types.Event{
		Type:      typ,
		ActorID:   actorID,
		SubjectID: subjectID,
		SeasonID:  seasonID,
	})
}

// Enroll registers userID for seasonID with the given postal details.
//
// It fails with validation_* for bad input, conflict_registration_closed
// outside the registration window, permission_user_banned or
// permission_user_unqualified when the platform profile does not qualify,
// and conflict_already_enrolled on a second enrollment.
func (s *Service) Enroll(ctx context.Context, seasonID, userID int64, in types.EnrollmentInput) (*types.Participant, error) {
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "invalid enrollment details", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, types.NewAppError(types.ErrCodePermissionBanned, "user is banned", nil)
	}
	profile, err := s.profiles.Profile(ctx, user.Login)
	if err != nil {
		return nil, err
	}
	if !profile.CanParticipate(user.IsBanned) {
		return nil, types.NewAppError(types.ErrCodePermissionUnqualified, "user does not qualify for the club", nil).
			WithDetails(map[string]any{"karma": profile.Karma, "readonly": profile.IsReadonly})
	}

	var created *types.Participant
	err = s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, _ *outbox.Buffer) error {
		season, err := repos.Seasons().GetForUpdate(ctx, seasonID)
		if err != nil {
			return err
		}
		if !season.IsRegistrationOpen(s.clock.Now()) {
			return types.NewAppError(types.ErrCodeConflictRegistrationClosed, "registration is closed", nil)
		}

		existing, err := repos.Participants().GetBySeasonAndUser(ctx, seasonID, userID)
		switch {
		case existing != nil:
			return types.NewAppError(types.ErrCodeConflictAlreadyEnrolled, "already enrolled in this season", nil)
		case err != nil && !types.HasCode(err, types.ErrCodeNotFoundParticipant):
			return err
		}

		p := &types.Participant{
			SeasonID: seasonID,
			UserID:   userID,
			Fullname: in.Fullname,
			Postcode: in.Postcode,
			Address:  in.Address,
			Country:  in.Country,
		}
		if err := repos.Participants().Create(ctx, p); err != nil {
			return err
		}
		if err := repos.Seasons().AdjustCounters(ctx, seasonID, types.SeasonCounters{Members: 1}); err != nil {
			return err
		}
		created = p
		return record(ctx, repos, types.EventEnrolled, userID, userID, seasonID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member enrolled", "season_id", seasonID, "user_id", userID)
	return created, nil
}

// CancelEnrollment withdraws userID from seasonID while registration is open.
func (s *Service) CancelEnrollment(ctx context.Context, seasonID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, _ *outbox.Buffer) error {
		season, err := repos.Seasons().GetForUpdate(ctx, seasonID)
		if err != nil {
			return err
		}
		p, err := repos.Participants().GetBySeasonAndUser(ctx, seasonID, userID)
		if err != nil {
			return err
		}
		if !season.IsRegistrationOpen(s.clock.Now()) {
			return types.NewAppError(types.ErrCodeConflictRegistrationClosed, "cannot withdraw after registration closed", nil)
		}
		if err := repos.Participants().Delete(ctx, p.ID); err != nil {
			return err
		}
		if err := repos.Seasons().AdjustCounters(ctx, seasonID, types.SeasonCounters{Members: -1}); err != nil {
			return err
		}
		return record(ctx, repos, types.EventUnenrolled, userID, userID, seasonID)
	})
}

// MarkShipped records that userID sent their gift. actorID is the member
// themselves or an organizer acting on their behalf; in the latter case
// both sides get the late-shipment wording. Members can no longer mark
// their own gift once the season is archived.
func (s *Service) MarkShipped(ctx context.Context, actorID, seasonID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		if err := s.checkSeasonActive(ctx, repos, actorID, seasonID, userID); err != nil {
			return err
		}
		p, err := repos.Participants().GetBySeasonAndUser(ctx, seasonID, userID)
		if err != nil {
			return err
		}
		if p.ReceiverID == nil {
			return types.NewAppError(types.ErrCodeNotFoundReceiver, "no gift receiver assigned yet", nil)
		}
		if p.GiftShippedAt != nil {
			return types.NewAppError(types.ErrCodeConflictAlreadyShipped, "gift already shipped", nil)
		}
		receiver, err := repos.Participants().GetByID(ctx, *p.ReceiverID)
		if err != nil {
			return err
		}

		if err := repos.Participants().MarkShipped(ctx, p.ID, s.clock.Now()); err != nil {
			return err
		}
		if err := repos.Seasons().AdjustCounters(ctx, seasonID, types.SeasonCounters{Shipped: 1}); err != nil {
			return err
		}
		if err := record(ctx, repos, types.EventGiftShipped, actorID, userID, seasonID); err != nil {
			return err
		}

		if actorID == userID {
			url := s.profileURL(seasonID)
			box.Notify(receiver.UserID, fmt.Sprintf(msgShippedNotify, url))
			box.Email(receiver.UserID, msgShippedSubject, fmt.Sprintf(msgShippedBody, url))
			return nil
		}
		box.Notify(userID, msgLateShippedSanta)
		box.Email(userID, msgLateSubject, msgLateShippedSanta)
		box.Notify(receiver.UserID, msgLateShippedReceiver)
		box.Email(receiver.UserID, msgLateSubject, msgLateShippedReceiver)
		return nil
	})
}

// MarkDelivered records that userID received their gift and queues the
// club badge for their santa. The santa must have shipped first.
func (s *Service) MarkDelivered(ctx context.Context, actorID, seasonID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		if err := s.checkSeasonActive(ctx, repos, actorID, seasonID, userID); err != nil {
			return err
		}
		p, err := repos.Participants().GetBySeasonAndUser(ctx, seasonID, userID)
		if err != nil {
			return err
		}
		santa, err := repos.Participants().FindSanta(ctx, p.ID)
		if err != nil {
			return err
		}
		if santa == nil {
			return types.NewAppError(types.ErrCodeNotFoundSanta, "no santa assigned yet", nil)
		}
		if p.GiftDeliveredAt != nil {
			return types.NewAppError(types.ErrCodeConflictAlreadyDelivered, "gift already delivered", nil)
		}
		if santa.GiftShippedAt == nil {
			return types.NewAppError(types.ErrCodeConflictNotShipped, "gift has not been shipped yet", nil)
		}

		if err := repos.Participants().MarkDelivered(ctx, p.ID, s.clock.Now()); err != nil {
			return err
		}
		if err := repos.Seasons().AdjustCounters(ctx, seasonID, types.SeasonCounters{Delivered: 1}); err != nil {
			return err
		}
		if err := record(ctx, repos, types.EventGiftDelivered, actorID, userID, seasonID); err != nil {
			return err
		}

		box.GrantBadge(santa.UserID, seasonID)
		if actorID == userID {
			box.Notify(santa.UserID, msgDeliveredNotify)
			box.Email(santa.UserID, msgDeliveredSubject, msgDeliveredBody)
			return nil
		}
		box.Notify(userID, msgLateDeliveredReceiver)
		box.Email(userID, msgLateSubject, msgGreeting+msgLateDeliveredReceiver)
		box.Notify(santa.UserID, msgLateDeliveredSantaNotify)
		box.Email(santa.UserID, msgLateSubject, msgLateDeliveredSantaBody)
		return nil
	})
}

// checkSeasonActive refuses a member's own gift marking after the season
// closed. Organizers acting on a member's behalf are not limited.
func (s *Service) checkSeasonActive(ctx context.Context, repos types.RepositoryRegistry, actorID, seasonID, userID int64) error {
	if actorID != userID {
		return nil
	}
	season, err := repos.Seasons().GetByID(ctx, seasonID)
	if err != nil {
		return err
	}
	if season.IsClosed(s.clock.Now()) {
		return types.NewAppError(types.ErrCodeConflictSeasonArchived, "season is archived", nil)
	}
	return nil
}

// Kick removes userID from seasonID on an organizer's behalf. Before
// matching the enrollment is simply deleted. After matching the kicked
// participant's santa takes over their receiver; a kick that would leave a
// ring of two fails with conflict_ring_too_small.
func (s *Service) Kick(ctx context.Context, actorID, seasonID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		season, err := repos.Seasons().GetForUpdate(ctx, seasonID)
		if err != nil {
			return err
		}
		participants := repos.Participants()
		p, err := participants.GetBySeasonAndUser(ctx, seasonID, userID)
		if err != nil {
			return err
		}

		if season.IsMatched() {
			if err := s.reconnect(ctx, participants, p, box, seasonID); err != nil {
				return err
			}
		}
		if err := participants.Delete(ctx, p.ID); err != nil {
			return err
		}
		if err := repos.Seasons().AdjustCounters(ctx, seasonID, types.SeasonCounters{Members: -1}); err != nil {
			return err
		}
		if err := record(ctx, repos, types.EventUnenrolled, actorID, userID, seasonID); err != nil {
			return err
		}

		box.Notify(userID, fmt.Sprintf(msgKickedNotify, seasonID))
		box.Email(userID, msgKickedSubject, fmt.Sprintf(msgKickedBody, seasonID))
		return nil
	})
}

func (s *Service) reconnect(ctx context.Context, participants types.ParticipantRepository, p *types.Participant, box *outbox.Buffer, seasonID int64) error {
	santa, err := participants.FindSanta(ctx, p.ID)
	if err != nil {
		return err
	}
	if santa == nil || p.ReceiverID == nil {
		return types.NewAppError(types.ErrCodeInternalInvariant, "matched participant is not part of a ring", nil).
			WithDetails(map[string]any{"participant_id": p.ID})
	}
	receiver, err := participants.GetByID(ctx, *p.ReceiverID)
	if err != nil {
		return err
	}
	if receiver.ReceiverID != nil && *receiver.ReceiverID == santa.ID {
		return types.NewAppError(types.ErrCodeConflictRingTooSmall, "kick would leave a ring of two", nil)
	}

	// The receiver link is unique: free it before handing it to the santa.
	if err := participants.SetReceiver(ctx, p.ID, nil); err != nil {
		return err
	}
	if err := participants.SetReceiver(ctx, santa.ID, &receiver.ID); err != nil {
		return err
	}

	box.Notify(santa.UserID, fmt.Sprintf(msgNewReceiverNotify, s.profileURL(seasonID)))
	box.Email(santa.UserID, msgNewReceiverSubject, msgNewReceiverBody)
	box.Notify(receiver.UserID, msgNewSantaNotify)
	box.Email(receiver.UserID, msgNewSantaSubject, msgNewSantaBody)
	return nil
}

// Ban blocks userID. Banning an already banned user or oneself is a
// conflict.
func (s *Service) Ban(ctx context.Context, actorID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsBanned {
			return types.NewAppError(types.ErrCodeConflictAlreadyBanned, fmt.Sprintf("user %q is already banned", user.Login), nil)
		}
		if actorID == userID {
			return types.NewAppError(types.ErrCodeConflictSelfBan, "organizers cannot ban themselves", nil)
		}
		if err := repos.Users().SetBanned(ctx, userID, true); err != nil {
			return err
		}
		if err := record(ctx, repos, types.EventBanned, actorID, userID, 0); err != nil {
			return err
		}
		box.Notify(userID, msgBannedNotify)
		box.Email(userID, msgBannedSubject, msgBannedBody)
		return nil
	})
}

// Unban lifts a ban.
func (s *Service) Unban(ctx context.Context, actorID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if !user.IsBanned {
			return types.NewAppError(types.ErrCodeConflictNotBanned, fmt.Sprintf("user %q is not banned", user.Login), nil)
		}
		if err := repos.Users().SetBanned(ctx, userID, false); err != nil {
			return err
		}
		if err := record(ctx, repos, types.EventUnbanned, actorID, userID, 0); err != nil {
			return err
		}
		box.Notify(userID, msgUnbannedNotify)
		box.Email(userID, msgUnbannedSubject, msgUnbannedBody)
		return nil
	})
}

// Unsubscribe turns emails off for the user behind an unsubscribe link.
func (s *Service) Unsubscribe(ctx context.Context, habrID int64, token string) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, _ *outbox.Buffer) error {
		user, err := repos.Users().GetByHabrID(ctx, habrID)
		if err != nil {
			return err
		}
		if !user.EmailToken.Matches(token) {
			return types.NewAppError(types.ErrCodePermissionToken, "unsubscribe token does not match", nil)
		}
		if !user.EmailAllowed {
			return types.NewAppError(types.ErrCodeConflictEmailsForbidden, "emails are already off", nil)
		}
		if err := repos.Users().SetEmailAllowed(ctx, user.ID, false); err != nil {
			return err
		}
		return record(ctx, repos, types.EventUnsubscribed, user.ID, user.ID, 0)
	})
}

// AllowEmails turns emails back on for userID, for members who unsubscribed
// by accident.
func (s *Service) AllowEmails(ctx context.Context, actorID, userID int64) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, _ *outbox.Buffer) error {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.EmailAllowed {
			return types.NewAppError(types.ErrCodeConflictEmailsAllowed, fmt.Sprintf("user %q already receives emails", user.Login), nil)
		}
		if err := repos.Users().SetEmailAllowed(ctx, userID, true); err != nil {
			return err
		}
		return record(ctx, repos, types.EventSubscribed, actorID, userID, 0)
	})
}
