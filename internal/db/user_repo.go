package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"giftclub/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
const userColumns = `id, login, habr_id, email, email_allowed, email_token,
	platform_token, is_banned, last_chat_notification, created_at`

// scanUser scans a single user row. Tokens are nullable in the database and
// come back as empty secrets.
func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u             types.User
		emailToken    *string
		platformToken *string
	)
	err := row.Scan(
		&u.ID,
		&u.Login,
		&u.HabrID,
		&u.Email,
		&u.EmailAllowed,
		&emailToken,
		&platformToken,
		&u.IsBanned,
		&u.LastChatNotification,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if emailToken != nil {
		u.EmailToken = types.SecretString(*emailToken)
	}
	if platformToken != nil {
		u.PlatformToken = types.SecretString(*platformToken)
	}
	return &u, nil
}

// GetByID retrieves a user. Returns ErrCodeNotFoundUser when absent.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*types.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByHabrID retrieves a user by their platform account id.
func (r *UserRepository) GetByHabrID(ctx context.Context, habrID int64) (*types.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE habr_id = $1`, habrID)
}

func (r *UserRepository) get(ctx context.Context, query string, arg int64) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// SetBanned sets the ban flag.
func (r *UserRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	return r.update(ctx, `UPDATE users SET is_banned = $2 WHERE id = $1`, id, banned, "failed to update ban flag")
}

// SetEmailAllowed sets the email opt-in flag.
func (r *UserRepository) SetEmailAllowed(ctx context.Context, id int64, allowed bool) error {
	return r.update(ctx, `UPDATE users SET email_allowed = $2 WHERE id = $1`, id, allowed, "failed to update email preference")
}

// SetLastChatNotification advances the chat digest watermark.
func (r *UserRepository) SetLastChatNotification(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, `UPDATE users SET last_chat_notification = $2 WHERE id = $1`, id, at, "failed to update chat notification time")
}

func (r *UserRepository) update(ctx context.Context, query string, id int64, value any, msg string) error {
	tag, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, msg, err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
