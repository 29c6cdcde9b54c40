package db

import (
	"context"
	"time"

	"giftclub/internal/types"
)

// MessageRepository reads the chat messages exchanged between santas and
// their receivers. Messages are written by the member-facing API.
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a new MessageRepository backed by the given
// database connection (pool or transaction).
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// CountUnread groups unread messages by recipient user. Only messages sent
// after the user's last chat notification count; users who were never
// notified fall back to now-lookback. Banned users are excluded.
//
// The fallback cutoff is computed in Go rather than with interval arithmetic
// in SQL.
func (r *MessageRepository) CountUnread(ctx context.Context, now time.Time, lookback time.Duration) ([]types.UnreadCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.user_id, COUNT(*)
		 FROM messages m
		 JOIN participants p ON p.id = m.recipient_id
		 JOIN users u ON u.id = p.user_id
		 WHERE m.read_date IS NULL
		   AND NOT u.is_banned
		   AND m.send_date > COALESCE(u.last_chat_notification, $1)
		   AND m.send_date <= $2
		 GROUP BY p.user_id
		 ORDER BY p.user_id`,
		now.Add(-lookback),
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count unread messages", err)
	}
	defer rows.Close()

	var counts []types.UnreadCount
	for rows.Next() {
		var c types.UnreadCount
		if err := rows.Scan(&c.UserID, &c.Count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan unread count", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating unread counts", err)
	}
	return counts, nil
}
