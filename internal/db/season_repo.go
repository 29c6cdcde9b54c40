package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"giftclub/internal/types"
)

// SeasonRepository provides data access for the seasons table.
type SeasonRepository struct {
	db DBTX
}

// NewSeasonRepository creates a new SeasonRepository backed by the given
// database connection (pool or transaction).
func NewSeasonRepository(db DBTX) *SeasonRepository {
	return &SeasonRepository{db: db}
}

const seasonColumns = `id, registration_open, registration_close, season_close,
	address_match, member_count, shipped_count, delivered_count`

func scanSeason(row pgx.Row) (*types.Season, error) {
	var s types.Season
	err := row.Scan(
		&s.ID,
		&s.RegistrationOpen,
		&s.RegistrationClose,
		&s.SeasonClose,
		&s.AddressMatch,
		&s.MemberCount,
		&s.ShippedCount,
		&s.DeliveredCount,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListEligibleForMatch returns the ids of seasons whose registration closed
// before now and that have not been matched yet, oldest first.
func (r *SeasonRepository) ListEligibleForMatch(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM seasons
		 WHERE registration_close < $1 AND address_match IS NULL
		 ORDER BY registration_close, id`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list seasons eligible for matching", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan season id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating seasons", err)
	}
	return ids, nil
}

// GetByID retrieves a season. Returns ErrCodeNotFoundSeason when absent.
func (r *SeasonRepository) GetByID(ctx context.Context, id int64) (*types.Season, error) {
	return r.get(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = $1`, id)
}

// GetForUpdate retrieves a season and locks its row until the enclosing
// transaction ends. Concurrent match attempts on the same season serialize
// here.
func (r *SeasonRepository) GetForUpdate(ctx context.Context, id int64) (*types.Season, error) {
	return r.get(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = $1 FOR UPDATE`, id)
}

func (r *SeasonRepository) get(ctx context.Context, query string, id int64) (*types.Season, error) {
	s, err := scanSeason(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSeason, "season not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve season", err)
	}
	return s, nil
}

// MarkMatched stamps address_match. The stamp is write-once: a season that
// already carries one is reported as a conflict.
func (r *SeasonRepository) MarkMatched(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE seasons SET address_match = $2
		 WHERE id = $1 AND address_match IS NULL`,
		id,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark season matched", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictSeasonClosed, "season already matched or missing", nil)
	}
	return nil
}

// AdjustCounters applies delta to the season's running counters.
func (r *SeasonRepository) AdjustCounters(ctx context.Context, id int64, delta types.SeasonCounters) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE seasons
		 SET member_count = member_count + $2,
		     shipped_count = shipped_count + $3,
		     delivered_count = delivered_count + $4
		 WHERE id = $1`,
		id,
		delta.Members,
		delta.Shipped,
		delta.Delivered,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to adjust season counters", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSeason, "season not found", nil)
	}
	return nil
}
