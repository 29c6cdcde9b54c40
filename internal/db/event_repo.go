package db

import (
	"context"

	"giftclub/internal/types"
)

// EventRepository appends to the events audit table.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository backed by the given
// database connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Record inserts e and fills in its ID and CreatedAt. Zero subject and
// season ids are stored as NULL.
func (r *EventRepository) Record(ctx context.Context, e *types.Event) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO events (type, actor_id, subject_id, season_id, created_at)
		 VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, 0), NOW())
		 RETURNING id, created_at`,
		string(e.Type),
		e.ActorID,
		e.SubjectID,
		e.SeasonID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record event", err)
	}
	return nil
}
