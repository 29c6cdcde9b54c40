package club

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giftclub/internal/outbox"
	"giftclub/internal/types"
)

var testNow = time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) Profile(ctx context.Context, login string) (*types.Profile, error) {
	args := m.Called(ctx, login)
	if p := args.Get(0); p != nil {
		return p.(*types.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// liveUsers reads the committed state, like a pool-bound repository.
type liveUsers struct{ d *db }

func (l liveUsers) GetByID(ctx context.Context, id int64) (*types.User, error) {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	return users{l.d.st}.GetByID(ctx, id)
}

type fixture struct {
	db       *db
	queue    *recordingQueue
	profiles *mockProfiles
	svc      *Service
}

const seasonID = 2025

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newState()
	st.seasons[seasonID] = types.Season{
		ID:                seasonID,
		RegistrationOpen:  testNow.Add(-24 * time.Hour),
		RegistrationClose: testNow.Add(24 * time.Hour),
		SeasonClose:       testNow.Add(30 * 24 * time.Hour),
	}
	for id := int64(1); id <= 6; id++ {
		email := fmt.Sprintf("user%d@example.com", id)
		st.users[id] = types.User{
			ID:           id,
			Login:        fmt.Sprintf("user%d", id),
			HabrID:       id + 500,
			Email:        &email,
			EmailAllowed: true,
			EmailToken:   types.SecretString(fmt.Sprintf("tok-%d", id)),
		}
	}

	f := &fixture{
		db:       &db{st: st},
		queue:    &recordingQueue{},
		profiles: &mockProfiles{},
	}
	f.svc = NewService(Config{
		UnitOfWork: outbox.NewRunner(f.db, f.queue, nopLogger{}),
		Users:      liveUsers{f.db},
		Profiles:   f.profiles,
		Clock:      fixedClock{testNow},
		SiteURL:    "https://club.example",
	})
	return f
}

func (f *fixture) state() *state { return f.db.st }

// matchRing enrolls users 1..n and links them into one ring in id order.
func (f *fixture) matchRing(n int) {
	st := f.state()
	s := st.seasons[seasonID]
	at := testNow.Add(-time.Hour)
	s.AddressMatch = &at
	s.MemberCount = n
	st.seasons[seasonID] = s
	for i := 1; i <= n; i++ {
		id := int64(10 + i)
		next := int64(10 + i%n + 1)
		st.participants[id] = types.Participant{
			ID:         id,
			SeasonID:   seasonID,
			UserID:     int64(i),
			Fullname:   fmt.Sprintf("Member %d", i),
			ReceiverID: &next,
		}
	}
}

// closeSeason moves season_close a day into the past.
func (f *fixture) closeSeason() {
	st := f.state()
	s := st.seasons[seasonID]
	s.SeasonClose = testNow.Add(-24 * time.Hour)
	st.seasons[seasonID] = s
}

func (f *fixture) participant(userID int64) types.Participant {
	for _, p := range f.state().participants {
		if p.SeasonID == seasonID && p.UserID == userID {
			return p
		}
	}
	return types.Participant{}
}

type job struct {
	UserID int64
	Action types.JobAction
	Text   string
}

func (f *fixture) jobs(t *testing.T) []job {
	t.Helper()
	out := make([]job, 0, len(f.queue.reqs))
	for _, r := range f.queue.reqs {
		j := job{UserID: r.UserID, Action: r.Action}
		switch r.Action {
		case types.JobActionNotify:
			var p types.NotifyPayload
			require.NoError(t, json.Unmarshal(r.Payload, &p))
			j.Text = p.Message
		case types.JobActionEmail:
			var p types.EmailPayload
			require.NoError(t, json.Unmarshal(r.Payload, &p))
			j.Text = p.Subject
		}
		out = append(out, j)
	}
	return out
}

func validInput() types.EnrollmentInput {
	country := "RU"
	return types.EnrollmentInput{
		Fullname: "Иван Петров",
		Postcode: "101000",
		Address:  "Москва, ул. Мясницкая, 1",
		Country:  &country,
	}
}

func qualified(login string) *types.Profile {
	return &types.Profile{Login: login, Karma: 12}
}

// --- Enrollment ---

func TestEnroll(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		f.profiles.On("Profile", mock.Anything, "user1").Return(qualified("user1"), nil)

		p, err := f.svc.Enroll(ctx, seasonID, 1, validInput())
		require.NoError(t, err)
		assert.NotZero(t, p.ID)
		assert.Equal(t, "RU", p.CountryCode())

		st := f.state()
		assert.Equal(t, 1, st.seasons[seasonID].MemberCount)
		require.Len(t, st.events, 1)
		assert.Equal(t, types.Event{Type: types.EventEnrolled, ActorID: 1, SeasonID: seasonID}, st.events[0])
		assert.Empty(t, f.queue.reqs)
	})

	t.Run("BadgeHolderWithLowKarma", func(t *testing.T) {
		f := newFixture(t)
		f.profiles.On("Profile", mock.Anything, "user1").
			Return(&types.Profile{Login: "user1", Karma: 1, HasBadge: true}, nil)

		_, err := f.svc.Enroll(ctx, seasonID, 1, validInput())
		require.NoError(t, err)
	})

	t.Run("AlreadyEnrolled", func(t *testing.T) {
		f := newFixture(t)
		f.profiles.On("Profile", mock.Anything, "user1").Return(qualified("user1"), nil)

		_, err := f.svc.Enroll(ctx, seasonID, 1, validInput())
		require.NoError(t, err)
		_, err = f.svc.Enroll(ctx, seasonID, 1, validInput())
		assert.True(t, types.HasCode(err, types.ErrCodeConflictAlreadyEnrolled))
		assert.Equal(t, 1, f.state().seasons[seasonID].MemberCount)
	})

	tests := []struct {
		name    string
		mutate  func(f *fixture, in *types.EnrollmentInput)
		profile *types.Profile
		profErr error
		code    types.ErrorCode
		errIs   error
	}{
		{
			name:   "MissingAddress",
			mutate: func(_ *fixture, in *types.EnrollmentInput) { in.Address = "" },
			code:   types.ErrCodeValidationMissingField,
		},
		{
			name: "LowercaseCountry",
			mutate: func(_ *fixture, in *types.EnrollmentInput) {
				c := "ru"
				in.Country = &c
			},
			code: types.ErrCodeValidationMissingField,
		},
		{
			name: "Banned",
			mutate: func(f *fixture, _ *types.EnrollmentInput) {
				u := f.state().users[1]
				u.IsBanned = true
				f.state().users[1] = u
			},
			code: types.ErrCodePermissionBanned,
		},
		{
			name:    "LowKarma",
			profile: &types.Profile{Login: "user1", Karma: 6.9},
			code:    types.ErrCodePermissionUnqualified,
		},
		{
			name:    "ReadonlyAccount",
			profile: &types.Profile{Login: "user1", Karma: 100, IsReadonly: true},
			code:    types.ErrCodePermissionUnqualified,
		},
		{
			name:    "ProfileUnavailable",
			profErr: types.NewAppError(types.ErrCodeUpstreamUnavailable, "platform down", nil),
			code:    types.ErrCodeUpstreamUnavailable,
		},
		{
			name: "RegistrationClosed",
			mutate: func(f *fixture, _ *types.EnrollmentInput) {
				s := f.state().seasons[seasonID]
				s.RegistrationClose = testNow.Add(-time.Minute)
				f.state().seasons[seasonID] = s
			},
			code: types.ErrCodeConflictRegistrationClosed,
		},
		{
			name: "SeasonMissing",
			mutate: func(f *fixture, _ *types.EnrollmentInput) {
				delete(f.state().seasons, seasonID)
			},
			code: types.ErrCodeNotFoundSeason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			if tt.mutate != nil {
				tt.mutate(f, &in)
			}
			profile := tt.profile
			if profile == nil && tt.profErr == nil {
				profile = qualified("user1")
			}
			f.profiles.On("Profile", mock.Anything, "user1").Return(profile, tt.profErr).Maybe()

			_, err := f.svc.Enroll(ctx, seasonID, 1, in)
			require.Error(t, err)
			assert.True(t, types.HasCode(err, tt.code), "got %v", err)
			assert.Empty(t, f.participant(1).Fullname)
			assert.Empty(t, f.state().events)
		})
	}
}

func TestEnroll_InvalidInputSkipsProfileLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Enroll(context.Background(), seasonID, 1, types.EnrollmentInput{})
	require.Error(t, err)
	f.profiles.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
}

func TestCancelEnrollment(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		f.profiles.On("Profile", mock.Anything, "user2").Return(qualified("user2"), nil)
		_, err := f.svc.Enroll(ctx, seasonID, 2, validInput())
		require.NoError(t, err)

		require.NoError(t, f.svc.CancelEnrollment(ctx, seasonID, 2))

		st := f.state()
		assert.Empty(t, st.participants)
		assert.Zero(t, st.seasons[seasonID].MemberCount)
		require.Len(t, st.events, 2)
		assert.Equal(t, types.EventUnenrolled, st.events[1].Type)
	})

	t.Run("NotEnrolled", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.CancelEnrollment(ctx, seasonID, 2)
		assert.True(t, types.HasCode(err, types.ErrCodeNotFoundParticipant))
	})

	t.Run("AfterMatching", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		err := f.svc.CancelEnrollment(ctx, seasonID, 2)
		assert.True(t, types.HasCode(err, types.ErrCodeConflictRegistrationClosed))
		assert.Len(t, f.state().participants, 3)
	})
}

// --- Gift progress ---

func TestMarkShipped(t *testing.T) {
	ctx := context.Background()

	t.Run("ByMember", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)

		require.NoError(t, f.svc.MarkShipped(ctx, 1, seasonID, 1))

		st := f.state()
		assert.Equal(t, testNow, *f.participant(1).GiftShippedAt)
		assert.Equal(t, 1, st.seasons[seasonID].ShippedCount)
		assert.Equal(t, types.Event{Type: types.EventGiftShipped, ActorID: 1, SeasonID: seasonID}, st.events[0])

		jobs := f.jobs(t)
		require.Len(t, jobs, 2)
		assert.Equal(t, job{2, types.JobActionNotify, fmt.Sprintf(msgShippedNotify, "https://club.example/2025/profile/")}, jobs[0])
		assert.Equal(t, job{2, types.JobActionEmail, msgShippedSubject}, jobs[1])
	})

	t.Run("OnBehalf", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)

		require.NoError(t, f.svc.MarkShipped(ctx, 6, seasonID, 1))

		ev := f.state().events[0]
		assert.Equal(t, int64(6), ev.ActorID)
		assert.Equal(t, int64(1), ev.SubjectID)

		jobs := f.jobs(t)
		require.Len(t, jobs, 4)
		assert.Equal(t, job{1, types.JobActionNotify, msgLateShippedSanta}, jobs[0])
		assert.Equal(t, job{2, types.JobActionNotify, msgLateShippedReceiver}, jobs[2])
	})

	t.Run("Twice", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		require.NoError(t, f.svc.MarkShipped(ctx, 1, seasonID, 1))

		err := f.svc.MarkShipped(ctx, 1, seasonID, 1)
		assert.True(t, types.HasCode(err, types.ErrCodeConflictAlreadyShipped))
		assert.Equal(t, 1, f.state().seasons[seasonID].ShippedCount)
		assert.Len(t, f.queue.reqs, 2)
	})

	t.Run("ClosedSeason", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		f.closeSeason()

		err := f.svc.MarkShipped(ctx, 1, seasonID, 1)
		assert.True(t, types.HasCode(err, types.ErrCodeConflictSeasonArchived))
		assert.Nil(t, f.participant(1).GiftShippedAt)
		assert.Zero(t, f.state().seasons[seasonID].ShippedCount)
		assert.Empty(t, f.queue.reqs)

		require.NoError(t, f.svc.MarkShipped(ctx, 6, seasonID, 1), "organizers may still mark on behalf")
		assert.Equal(t, 1, f.state().seasons[seasonID].ShippedCount)
	})

	t.Run("BeforeMatching", func(t *testing.T) {
		f := newFixture(t)
		f.profiles.On("Profile", mock.Anything, "user1").Return(qualified("user1"), nil)
		_, err := f.svc.Enroll(ctx, seasonID, 1, validInput())
		require.NoError(t, err)

		err = f.svc.MarkShipped(ctx, 1, seasonID, 1)
		assert.True(t, types.HasCode(err, types.ErrCodeNotFoundReceiver))
	})
}

func TestMarkDelivered(t *testing.T) {
	ctx := context.Background()

	t.Run("NotShipped", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)

		err := f.svc.MarkDelivered(ctx, 2, seasonID, 2)
		assert.True(t, types.HasCode(err, types.ErrCodeConflictNotShipped))
		assert.Empty(t, f.queue.reqs)
	})

	t.Run("ByMember", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		require.NoError(t, f.svc.MarkShipped(ctx, 1, seasonID, 1))
		f.queue.reqs = nil

		require.NoError(t, f.svc.MarkDelivered(ctx, 2, seasonID, 2))

		st := f.state()
		assert.NotNil(t, f.participant(2).GiftDeliveredAt)
		assert.Equal(t, 1, st.seasons[seasonID].DeliveredCount)
		assert.Equal(t, types.EventGiftDelivered, st.events[1].Type)

		reqs := f.queue.reqs
		require.Len(t, reqs, 3)
		assert.Equal(t, types.JobActionGrantBadge, reqs[0].Action)
		assert.Equal(t, int64(1), reqs[0].UserID)
		assert.JSONEq(t, `{"season_id":2025}`, string(reqs[0].Payload))
		assert.Equal(t, job{1, types.JobActionNotify, msgDeliveredNotify}, f.jobs(t)[1])
	})

	t.Run("OnBehalf", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		require.NoError(t, f.svc.MarkShipped(ctx, 1, seasonID, 1))
		f.queue.reqs = nil

		require.NoError(t, f.svc.MarkDelivered(ctx, 6, seasonID, 2))

		jobs := f.jobs(t)
		require.Len(t, jobs, 5)
		assert.Equal(t, types.JobActionGrantBadge, jobs[0].Action)
		assert.Equal(t, job{2, types.JobActionNotify, msgLateDeliveredReceiver}, jobs[1])
		assert.Equal(t, job{1, types.JobActionNotify, msgLateDeliveredSantaNotify}, jobs[3])
	})

	t.Run("Twice", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		require.NoError(t, f.svc.MarkShipped(ctx, 1, seasonID, 1))
		require.NoError(t, f.svc.MarkDelivered(ctx, 2, seasonID, 2))

		err := f.svc.MarkDelivered(ctx, 2, seasonID, 2)
		assert.True(t, types.HasCode(err, types.ErrCodeConflictAlreadyDelivered))
	})

	t.Run("ClosedSeason", func(t *testing.T) {
		f := newFixture(t)
		f.matchRing(3)
		require.NoError(t, f.svc.MarkShipped(ctx, 1, seasonID, 1))
		f.queue.reqs = nil
		f.closeSeason()

		err := f.svc.MarkDelivered(ctx, 2, seasonID, 2)
		assert.True(t, types.HasCode(err, types.ErrCodeConflictSeasonArchived))
		assert.Nil(t, f.participant(2).GiftDeliveredAt)
		assert.Zero(t, f.state().seasons[seasonID].DeliveredCount)
		assert.Empty(t, f.queue.reqs)

		require.NoError(t, f.svc.MarkDelivered(ctx, 6, seasonID, 2))
		assert.Equal(t, 1, f.state().seasons[seasonID].DeliveredCount)
	})

	t.Run("NoSanta", func(t *testing.T) {
		f := newFixture(t)
		f.profiles.On("Profile", mock.Anything, "user1").Return(qualified("user1"), nil)
		_, err := f.svc.Enroll(ctx, seasonID, 1, validInput())
		require.NoError(t, err)

		err = f.svc.MarkDelivered(ctx, 1, seasonID, 1)
		assert.True(t, types.HasCode(err, types.ErrCodeNotFoundSanta))
	})
}

// --- Kick ---

func TestKick_BeforeMatching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.profiles.On("Profile", mock.Anything, "user3").Return(qualified("user3"), nil)
	_, err := f.svc.Enroll(ctx, seasonID, 3, validInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.Kick(ctx, 6, seasonID, 3))

	st := f.state()
	assert.Empty(t, st.participants)
	assert.Zero(t, st.seasons[seasonID].MemberCount)
	assert.Equal(t, types.Event{Type: types.EventUnenrolled, ActorID: 6, SubjectID: 3, SeasonID: seasonID}, st.events[1])

	jobs := f.jobs(t)
	require.Len(t, jobs, 2)
	assert.Equal(t, job{3, types.JobActionNotify, "Кто-то из организаторов отменил ваше участие в АДМ-2025."}, jobs[0])
	assert.Equal(t, job{3, types.JobActionEmail, msgKickedSubject}, jobs[1])
}

func TestKick_AfterMatchingReconnectsRing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.matchRing(4)

	// Ring: 11 -> 12 -> 13 -> 14 -> 11. Kicking user 2 (participant 12).
	require.NoError(t, f.svc.Kick(ctx, 6, seasonID, 2))

	st := f.state()
	require.Len(t, st.participants, 3)
	assert.Equal(t, int64(13), *st.participants[11].ReceiverID)
	assert.Equal(t, 3, st.seasons[seasonID].MemberCount)

	seen := map[int64]bool{}
	cur := int64(11)
	for range 3 {
		seen[cur] = true
		cur = *st.participants[cur].ReceiverID
	}
	assert.Equal(t, int64(11), cur)
	assert.Len(t, seen, 3)

	jobs := f.jobs(t)
	require.Len(t, jobs, 6)
	assert.Equal(t, job{1, types.JobActionNotify, fmt.Sprintf(msgNewReceiverNotify, "https://club.example/2025/profile/")}, jobs[0])
	assert.Equal(t, job{1, types.JobActionEmail, msgNewReceiverSubject}, jobs[1])
	assert.Equal(t, job{3, types.JobActionNotify, msgNewSantaNotify}, jobs[2])
	assert.Equal(t, job{3, types.JobActionEmail, msgNewSantaSubject}, jobs[3])
	assert.Equal(t, int64(2), jobs[4].UserID)
	assert.Equal(t, int64(2), jobs[5].UserID)
}

func TestKick_RingOfThreeRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.matchRing(3)

	err := f.svc.Kick(ctx, 6, seasonID, 2)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictRingTooSmall))
	assert.Len(t, f.state().participants, 3)
	assert.Empty(t, f.state().events)
	assert.Empty(t, f.queue.reqs)
}

func TestKick_BrokenRing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.matchRing(4)
	p := f.state().participants[12]
	p.ReceiverID = nil
	f.state().participants[12] = p

	err := f.svc.Kick(ctx, 6, seasonID, 2)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalInvariant))
	assert.Len(t, f.state().participants, 4)
}

// --- Accounts ---

func TestBanAndUnban(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.Ban(ctx, 6, 4))
	assert.True(t, f.state().users[4].IsBanned)

	err := f.svc.Ban(ctx, 6, 4)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictAlreadyBanned))

	require.NoError(t, f.svc.Unban(ctx, 6, 4))
	assert.False(t, f.state().users[4].IsBanned)

	err = f.svc.Unban(ctx, 6, 4)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictNotBanned))

	st := f.state()
	require.Len(t, st.events, 2)
	assert.Equal(t, types.Event{Type: types.EventBanned, ActorID: 6, SubjectID: 4}, st.events[0])
	assert.Equal(t, types.EventUnbanned, st.events[1].Type)

	jobs := f.jobs(t)
	require.Len(t, jobs, 4)
	assert.Equal(t, job{4, types.JobActionNotify, msgBannedNotify}, jobs[0])
	assert.Equal(t, job{4, types.JobActionEmail, msgUnbannedSubject}, jobs[3])
}

func TestBan_Self(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Ban(context.Background(), 6, 6)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictSelfBan))
	assert.False(t, f.state().users[6].IsBanned)
}

func TestBan_UnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Ban(context.Background(), 6, 99)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundUser))
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		habrID int64
		token  string
		code   types.ErrorCode
	}{
		{name: "Success", habrID: 503, token: "tok-3"},
		{name: "WrongToken", habrID: 503, token: "tok-4", code: types.ErrCodePermissionToken},
		{name: "EmptyToken", habrID: 503, token: "", code: types.ErrCodePermissionToken},
		{name: "UnknownUser", habrID: 42, token: "tok-3", code: types.ErrCodeNotFoundUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.svc.Unsubscribe(ctx, tt.habrID, tt.token)
			if tt.code == "" {
				require.NoError(t, err)
				assert.False(t, f.state().users[3].EmailAllowed)
				assert.Equal(t, types.Event{Type: types.EventUnsubscribed, ActorID: 3}, f.state().events[0])
				return
			}
			assert.True(t, types.HasCode(err, tt.code), "got %v", err)
			assert.True(t, f.state().users[3].EmailAllowed)
		})
	}

	t.Run("AlreadyUnsubscribed", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Unsubscribe(ctx, 503, "tok-3"))
		err := f.svc.Unsubscribe(ctx, 503, "tok-3")
		assert.True(t, types.HasCode(err, types.ErrCodeConflictEmailsForbidden))
	})
}

func TestAllowEmails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.AllowEmails(ctx, 6, 3)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictEmailsAllowed))

	require.NoError(t, f.svc.Unsubscribe(ctx, 503, "tok-3"))
	require.NoError(t, f.svc.AllowEmails(ctx, 6, 3))
	assert.True(t, f.state().users[3].EmailAllowed)
	assert.Equal(t, types.Event{Type: types.EventSubscribed, ActorID: 6, SubjectID: 3}, f.state().events[1])
	assert.Empty(t, f.queue.reqs)
}

type failingTx struct{ err error }

func (f failingTx) RunInTx(context.Context, func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	return f.err
}

func TestService_TransactionErrorPassesThrough(t *testing.T) {
	boom := errors.New("connection reset")
	queue := &recordingQueue{}
	svc := NewService(Config{
		UnitOfWork: outbox.NewRunner(failingTx{boom}, queue, nopLogger{}),
		Clock:      fixedClock{testNow},
	})

	err := svc.Ban(context.Background(), 6, 4)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, queue.reqs)
}
