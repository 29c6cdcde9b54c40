package matching

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"giftclub/internal/types"
)

// MinRingSize is the smallest cluster that can be matched. A ring of one
// gives to itself and a ring of two exposes both santas to each other.
const MinRingSize = 3

var (
	// ErrInsufficientParticipants reports a non-empty cluster below
	// MinRingSize.
	ErrInsufficientParticipants = errors.New("insufficient participants")

	// ErrInvariantViolation reports an assignment that is not a single
	// cycle over its cluster. It indicates a programming error.
	ErrInvariantViolation = errors.New("matching invariant violated")
)

// InsufficientParticipantsError carries the cluster that could not be
// matched. It matches ErrInsufficientParticipants with errors.Is.
type InsufficientParticipantsError struct {
	Cluster string
	Count   int
}

func (e *InsufficientParticipantsError) Error() string {
	return fmt.Sprintf("cluster %q has %d participants, need at least %d", e.Cluster, e.Count, MinRingSize)
}

// Is makes errors.Is(err, ErrInsufficientParticipants) hold.
func (e *InsufficientParticipantsError) Is(target error) bool {
	return target == ErrInsufficientParticipants
}

// AssignRing arranges the cluster into one cycle: members are shuffled with
// rng and each gives to the next, the last to the first. Assignments are
// returned in shuffled order.
//
// The construction only reaches single n-cycles, not every derangement.
func AssignRing(rng *rand.Rand, cluster Cluster) ([]types.Assignment, error) {
	n := len(cluster.Members)
	if n < MinRingSize {
		return nil, &InsufficientParticipantsError{Cluster: cluster.Label, Count: n}
	}

	order := make([]int64, n)
	for i, p := range cluster.Members {
		order[i] = p.ID
	}
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	assignments := make([]types.Assignment, n)
	for i, giver := range order {
		assignments[i] = types.Assignment{
			GiverID:    giver,
			ReceiverID: order[(i+1)%n],
		}
	}

	if err := VerifyRing(cluster.Members, assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

// VerifyRing checks that assignments form exactly one cycle covering every
// member: each member gives exactly once, nobody gives to themselves, and
// following receivers from any member visits all members before returning.
func VerifyRing(members []types.Participant, assignments []types.Assignment) error {
	if len(assignments) != len(members) {
		return fmt.Errorf("%w: %d assignments for %d members", ErrInvariantViolation, len(assignments), len(members))
	}

	next := make(map[int64]int64, len(assignments))
	for _, a := range assignments {
		if a.GiverID == a.ReceiverID {
			return fmt.Errorf("%w: participant %d assigned to themselves", ErrInvariantViolation, a.GiverID)
		}
		if _, dup := next[a.GiverID]; dup {
			return fmt.Errorf("%w: participant %d gives twice", ErrInvariantViolation, a.GiverID)
		}
		next[a.GiverID] = a.ReceiverID
	}
	for _, m := range members {
		if _, ok := next[m.ID]; !ok {
			return fmt.Errorf("%w: participant %d has no receiver", ErrInvariantViolation, m.ID)
		}
	}
	if len(members) == 0 {
		return nil
	}

	start := members[0].ID
	current := start
	for steps := 1; ; steps++ {
		receiver, ok := next[current]
		if !ok {
			return fmt.Errorf("%w: receiver %d is outside the cluster", ErrInvariantViolation, current)
		}
		current = receiver
		if current == start {
			if steps != len(members) {
				return fmt.Errorf("%w: cycle of %d covers only part of %d members", ErrInvariantViolation, steps, len(members))
			}
			return nil
		}
		if steps > len(members) {
			return fmt.Errorf("%w: receivers do not return to participant %d", ErrInvariantViolation, start)
		}
	}
}
