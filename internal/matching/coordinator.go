package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"giftclub/internal/outbox"
	"giftclub/internal/types"
)

// Outcome is the result of one season match attempt.
type Outcome string

const (
	// OutcomeMatched: receivers persisted, season stamped, notifications queued.
	OutcomeMatched Outcome = "matched"
	// OutcomeAborted: a cluster was too small; nothing was written.
	OutcomeAborted Outcome = "aborted"
	// OutcomeSkipped: the season was already matched or not yet closed.
	OutcomeSkipped Outcome = "skipped"
)

// SeasonResult describes one attempt.
type SeasonResult struct {
	SeasonID     int64
	Outcome      Outcome
	Participants int
	// Cluster and ClusterSize are set when the attempt was aborted.
	Cluster     string
	ClusterSize int
}

// Report summarizes a Run.
type Report struct {
	Seasons []SeasonResult
}

// Count returns the number of seasons with the given outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Seasons {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// UnitOfWork runs fn in a transaction with an outbox buffer attached.
// *outbox.Runner implements it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error) error
}

// RandFactory returns a fresh random source for one attempt.
type RandFactory func() *rand.Rand

// NewRandFactory returns a factory of randomly seeded PCG sources.
func NewRandFactory() RandFactory {
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// SeededRandFactory returns a factory whose every source starts from the
// same seed, for reproducible rings.
func SeededRandFactory(seed1, seed2 uint64) RandFactory {
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(seed1, seed2))
	}
}

// CoordinatorConfig holds the static matching parameters.
type CoordinatorConfig struct {
	// Clusters are the ordered country sets; the catch-all is implicit.
	Clusters [][]string
	// SiteURL is the public base URL used in notification links.
	SiteURL string
}

// Coordinator matches seasons whose registration has closed.
type Coordinator struct {
	seasons types.SeasonRepository
	uow     UnitOfWork
	clock   types.Clock
	newRand RandFactory
	cfg     CoordinatorConfig
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator. seasons is used outside any
// transaction to find candidates; each match runs in its own unit of work.
func NewCoordinator(seasons types.SeasonRepository, uow UnitOfWork, clock types.Clock, newRand RandFactory, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if newRand == nil {
		newRand = NewRandFactory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		seasons: seasons,
		uow:     uow,
		clock:   clock,
		newRand: newRand,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run attempts every eligible season. No eligible season is not an error.
// A failing season does not stop the others; their errors are joined.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	var report Report

	ids, err := c.seasons.ListEligibleForMatch(ctx, c.clock.Now())
	if err != nil {
		return report, fmt.Errorf("list eligible seasons: %w", err)
	}
	if len(ids) == 0 {
		c.logger.InfoContext(ctx, "no season needs matching")
		return report, nil
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := c.MatchSeason(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("season %d: %w", id, err))
			continue
		}
		report.Seasons = append(report.Seasons, res)
	}
	return report, errors.Join(errs...)
}

// MatchSeason matches one season atomically. The season row is locked and
// eligibility re-checked inside the transaction, so a second call on a
// matched season is a no-op.
//
// A cluster with fewer than MinRingSize members aborts the whole attempt:
// nothing is persisted or queued, a warning is logged and the season stays
// eligible. The abort is reported as OutcomeAborted with a nil error.
func (c *Coordinator) MatchSeason(ctx context.Context, seasonID int64) (SeasonResult, error) {
	var result SeasonResult

	err := c.uow.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry, box *outbox.Buffer) error {
		result = SeasonResult{SeasonID: seasonID}

		season, err := repos.Seasons().GetForUpdate(ctx, seasonID)
		if err != nil {
			return err
		}
		now := c.clock.Now()
		if !season.IsEligibleForMatch(now) {
			result.Outcome = OutcomeSkipped
			return nil
		}

		participants, err := repos.Participants().ListBySeason(ctx, seasonID)
		if err != nil {
			return err
		}
		result.Participants = len(participants)

		assignments, err := c.assign(participants)
		if err != nil {
			return err
		}

		if len(assignments) > 0 {
			if err := repos.Participants().SetReceivers(ctx, seasonID, assignments); err != nil {
				return err
			}
		}
		if err := repos.Seasons().MarkMatched(ctx, seasonID, now); err != nil {
			return err
		}

		profileURL := fmt.Sprintf("%s/%d/profile/", c.cfg.SiteURL, seasonID)
		for _, p := range participants {
			box.Notify(p.UserID, fmt.Sprintf(matchedNotification, profileURL))
			box.Email(p.UserID, matchedEmailSubject, fmt.Sprintf(matchedEmailBody, profileURL))
		}
		result.Outcome = OutcomeMatched
		return nil
	})

	var short *InsufficientParticipantsError
	switch {
	case err == nil:
	case errors.As(err, &short):
		c.logger.WarnContext(ctx, "not enough participants to match cluster, season left unmatched",
			"season_id", seasonID,
			"cluster", short.Cluster,
			"participants", short.Count,
		)
		result.Outcome = OutcomeAborted
		result.Cluster = short.Cluster
		result.ClusterSize = short.Count
		return result, nil
	case errors.Is(err, ErrInvariantViolation):
		c.logger.ErrorContext(ctx, "season matching produced an invalid ring, rolled back",
			"season_id", seasonID,
			"error", err,
		)
		return result, err
	default:
		return result, err
	}

	switch result.Outcome {
	case OutcomeMatched:
		c.logger.InfoContext(ctx, "season matched",
			"season_id", seasonID,
			"participants", result.Participants,
		)
	case OutcomeSkipped:
		c.logger.InfoContext(ctx, "season already matched or still open, skipping", "season_id", seasonID)
	}
	return result, nil
}

// assign partitions participants and builds a ring for every non-empty
// cluster, in definition order, from one random source.
func (c *Coordinator) assign(participants []types.Participant) ([]types.Assignment, error) {
	rng := c.newRand()
	var all []types.Assignment
	for _, cluster := range Partition(participants, c.cfg.Clusters) {
		if len(cluster.Members) == 0 {
			continue
		}
		ring, err := AssignRing(rng, cluster)
		if err != nil {
			return nil, err
		}
		all = append(all, ring...)
	}
	return all, nil
}
