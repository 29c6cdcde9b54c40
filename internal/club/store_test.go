package club

import (
	"context"
	"maps"
	"sync"
	"time"

	"giftclub/internal/outbox"
	"giftclub/internal/types"
)

// state is an in-memory club database. Transactions work on a clone that
// replaces the original only when fn succeeds.
type state struct {
	seasons      map[int64]types.Season
	participants map[int64]types.Participant
	users        map[int64]types.User
	events       []types.Event
	nextID       int64
}

func newState() *state {
	return &state{
		seasons:      map[int64]types.Season{},
		participants: map[int64]types.Participant{},
		users:        map[int64]types.User{},
		nextID:       1000,
	}
}

func (s *state) clone() *state {
	return &state{
		seasons:      maps.Clone(s.seasons),
		participants: maps.Clone(s.participants),
		users:        maps.Clone(s.users),
		events:       append([]types.Event(nil), s.events...),
		nextID:       s.nextID,
	}
}

type registry struct{ st *state }

func (r registry) Seasons() types.SeasonRepository           { return seasons{r.st} }
func (r registry) Participants() types.ParticipantRepository { return participants{r.st} }
func (r registry) Users() types.UserRepository               { return users{r.st} }
func (r registry) Messages() types.MessageRepository         { return nil }
func (r registry) Events() types.EventRepository             { return events{r.st} }

type seasons struct{ st *state }

func (m seasons) ListEligibleForMatch(context.Context, time.Time) ([]int64, error) { return nil, nil }

func (m seasons) GetByID(_ context.Context, id int64) (*types.Season, error) {
	s, ok := m.st.seasons[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSeason, "season not found", nil)
	}
	return &s, nil
}

func (m seasons) GetForUpdate(ctx context.Context, id int64) (*types.Season, error) {
	return m.GetByID(ctx, id)
}

func (m seasons) MarkMatched(_ context.Context, id int64, at time.Time) error {
	s := m.st.seasons[id]
	s.AddressMatch = &at
	m.st.seasons[id] = s
	return nil
}

func (m seasons) AdjustCounters(_ context.Context, id int64, d types.SeasonCounters) error {
	s := m.st.seasons[id]
	s.MemberCount += d.Members
	s.ShippedCount += d.Shipped
	s.DeliveredCount += d.Delivered
	m.st.seasons[id] = s
	return nil
}

type participants struct{ st *state }

func (m participants) ListBySeason(_ context.Context, seasonID int64) ([]types.Participant, error) {
	var out []types.Participant
	for _, p := range m.st.participants {
		if p.SeasonID == seasonID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m participants) GetByID(_ context.Context, id int64) (*types.Participant, error) {
	p, ok := m.st.participants[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundParticipant, "participant not found", nil)
	}
	return &p, nil
}

func (m participants) GetBySeasonAndUser(_ context.Context, seasonID, userID int64) (*types.Participant, error) {
	for _, p := range m.st.participants {
		if p.SeasonID == seasonID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundParticipant, "participant not found", nil)
}

func (m participants) FindSanta(_ context.Context, participantID int64) (*types.Participant, error) {
	for _, p := range m.st.participants {
		if p.ReceiverID != nil && *p.ReceiverID == participantID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m participants) Create(_ context.Context, p *types.Participant) error {
	m.st.nextID++
	p.ID = m.st.nextID
	m.st.participants[p.ID] = *p
	return nil
}

func (m participants) Delete(_ context.Context, id int64) error {
	delete(m.st.participants, id)
	// receiver_id references participants ON DELETE SET NULL.
	for k, p := range m.st.participants {
		if p.ReceiverID != nil && *p.ReceiverID == id {
			p.ReceiverID = nil
			m.st.participants[k] = p
		}
	}
	return nil
}

func (m participants) SetReceivers(_ context.Context, _ int64, as []types.Assignment) error {
	for _, a := range as {
		p := m.st.participants[a.GiverID]
		r := a.ReceiverID
		p.ReceiverID = &r
		m.st.participants[a.GiverID] = p
	}
	return nil
}

func (m participants) SetReceiver(_ context.Context, giverID int64, receiverID *int64) error {
	p := m.st.participants[giverID]
	p.ReceiverID = receiverID
	m.st.participants[giverID] = p
	return nil
}

func (m participants) MarkShipped(_ context.Context, id int64, at time.Time) error {
	p := m.st.participants[id]
	p.GiftShippedAt = &at
	m.st.participants[id] = p
	return nil
}

func (m participants) MarkDelivered(_ context.Context, id int64, at time.Time) error {
	p := m.st.participants[id]
	p.GiftDeliveredAt = &at
	m.st.participants[id] = p
	return nil
}

type users struct{ st *state }

func (m users) GetByID(_ context.Context, id int64) (*types.User, error) {
	u, ok := m.st.users[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return &u, nil
}

func (m users) GetByHabrID(_ context.Context, habrID int64) (*types.User, error) {
	for _, u := range m.st.users {
		if u.HabrID == habrID {
			return &u, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}

func (m users) SetBanned(_ context.Context, id int64, banned bool) error {
	u := m.st.users[id]
	u.IsBanned = banned
	m.st.users[id] = u
	return nil
}

func (m users) SetEmailAllowed(_ context.Context, id int64, allowed bool) error {
	u := m.st.users[id]
	u.EmailAllowed = allowed
	m.st.users[id] = u
	return nil
}

func (m users) SetLastChatNotification(_ context.Context, id int64, at time.Time) error {
	u := m.st.users[id]
	u.LastChatNotification = &at
	m.st.users[id] = u
	return nil
}

type events struct{ st *state }

func (m events) Record(_ context.Context, e *types.Event) error {
	m.st.events = append(m.st.events, *e)
	return nil
}

// db serializes transactions over a state.
type db struct {
	mu sync.Mutex
	st *state
}

func (d *db) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := d.st.clone()
	if err := fn(ctx, registry{tx}); err != nil {
		return err
	}
	d.st = tx
	return nil
}

type recordingQueue struct {
	reqs []types.JobRequest
}

func (q *recordingQueue) Submit(_ context.Context, reqs ...types.JobRequest) ([]int64, error) {
	q.reqs = append(q.reqs, reqs...)
	ids := make([]int64, len(reqs))
	for i := range reqs {
		ids[i] = int64(len(q.reqs) - len(reqs) + i + 1)
	}
	return ids, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (l nopLogger) With(...any) types.Logger { return l }

var _ UnitOfWork = (*outbox.Runner)(nil)
