package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"giftclub/internal/types"
)

// ParticipantRepository provides data access for the participants table.
//
// receiver_id is UNIQUE and references participants with ON DELETE SET NULL:
// deleting a receiver clears the link held by its santa instead of removing
// the santa.
type ParticipantRepository struct {
	db DBTX
}

// NewParticipantRepository creates a new ParticipantRepository backed by the
// given database connection (pool or transaction).
func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `id, season_id, user_id, fullname, postcode, address,
	country, receiver_id, gift_shipped_at, gift_delivered_at, created_at`

func scanParticipant(row pgx.Row) (*types.Participant, error) {
	var p types.Participant
	err := row.Scan(
		&p.ID,
		&p.SeasonID,
		&p.UserID,
		&p.Fullname,
		&p.Postcode,
		&p.Address,
		&p.Country,
		&p.ReceiverID,
		&p.GiftShippedAt,
		&p.GiftDeliveredAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListBySeason returns every participant of a season ordered by id.
func (r *ParticipantRepository) ListBySeason(ctx context.Context, seasonID int64) ([]types.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE season_id = $1
		 ORDER BY id`,
		seasonID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list participants", err)
	}
	defer rows.Close()

	var result []types.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan participant", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating participants", err)
	}
	return result, nil
}

// GetByID retrieves a participant by id.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int64) (*types.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundParticipant, "participant not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve participant", err)
	}
	return p, nil
}

// GetBySeasonAndUser retrieves a user's enrollment in a season.
func (r *ParticipantRepository) GetBySeasonAndUser(ctx context.Context, seasonID, userID int64) (*types.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE season_id = $1 AND user_id = $2`,
		seasonID,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundParticipant, "participant not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve participant", err)
	}
	return p, nil
}

// FindSanta returns the participant whose receiver is participantID, or nil
// when nobody has been assigned to give to them.
func (r *ParticipantRepository) FindSanta(ctx context.Context, participantID int64) (*types.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE receiver_id = $1`,
		participantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up santa", err)
	}
	return p, nil
}

// Create inserts a participant and fills in its ID and CreatedAt. A second
// enrollment of the same user in the same season is a conflict.
func (r *ParticipantRepository) Create(ctx context.Context, p *types.Participant) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO participants (season_id, user_id, fullname, postcode, address, country, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		p.SeasonID,
		p.UserID,
		p.Fullname,
		p.Postcode,
		p.Address,
		p.Country,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictAlreadyEnrolled, "user already enrolled in season", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create participant", err)
	}
	return nil
}

// Delete removes a participant. Any santa pointing at it loses its link.
func (r *ParticipantRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete participant", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundParticipant, "participant not found", nil)
	}
	return nil
}

// SetReceivers replaces the receiver links of a whole season. Links are
// cleared first so that the unique constraint on receiver_id holds while the
// new ring is written in a single statement.
func (r *ParticipantRepository) SetReceivers(ctx context.Context, seasonID int64, assignments []types.Assignment) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE participants SET receiver_id = NULL
		 WHERE season_id = $1 AND receiver_id IS NOT NULL`,
		seasonID,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear receiver links", err)
	}
	if len(assignments) == 0 {
		return nil
	}

	givers := make([]int64, len(assignments))
	receivers := make([]int64, len(assignments))
	for i, a := range assignments {
		givers[i] = a.GiverID
		receivers[i] = a.ReceiverID
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE participants AS p
		 SET receiver_id = a.receiver_id
		 FROM unnest($2::bigint[], $3::bigint[]) AS a(giver_id, receiver_id)
		 WHERE p.id = a.giver_id AND p.season_id = $1`,
		seasonID,
		givers,
		receivers,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write receiver links", err)
	}
	if tag.RowsAffected() != int64(len(assignments)) {
		return types.NewAppError(types.ErrCodeInternalInvariant, "receiver links written for participants outside the season", nil).
			WithDetails(map[string]any{"expected": len(assignments), "written": tag.RowsAffected()})
	}
	return nil
}

// SetReceiver rewrites a single receiver link; nil clears it.
func (r *ParticipantRepository) SetReceiver(ctx context.Context, giverID int64, receiverID *int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE participants SET receiver_id = $2 WHERE id = $1`,
		giverID,
		receiverID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set receiver", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundParticipant, "participant not found", nil)
	}
	return nil
}

// MarkShipped stamps gift_shipped_at once.
func (r *ParticipantRepository) MarkShipped(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE participants SET gift_shipped_at = $2
		 WHERE id = $1 AND gift_shipped_at IS NULL`,
		id,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark gift shipped", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlreadyShipped, "gift already shipped", nil)
	}
	return nil
}

// MarkDelivered stamps gift_delivered_at once.
func (r *ParticipantRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE participants SET gift_delivered_at = $2
		 WHERE id = $1 AND gift_delivered_at IS NULL`,
		id,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark gift delivered", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlreadyDelivered, "gift already delivered", nil)
	}
	return nil
}
