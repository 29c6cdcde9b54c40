// Package db provides PostgreSQL-backed repository implementations for the
// gift club. All repositories accept a DBTX interface that is satisfied by
// both *pgxpool.Pool (for normal queries) and pgx.Tx (for transactional
// execution), so the same repository code runs inside or outside a unit of
// work.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"giftclub/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Conn runs queries and starts transactions. *pgxpool.Pool satisfies it.
type Conn interface {
	DBTX
	TxBeginner
}

// sqlStateSerializationFailure is reported when a serializable transaction
// cannot be committed because of a concurrent conflict.
const sqlStateSerializationFailure = "40001"

// defaultTxAttempts bounds how often a unit of work is replayed after a
// serialization failure.
const defaultTxAttempts = 3

// Repositories bundles every repository bound to one DBTX. It implements
// types.RepositoryRegistry.
type Repositories struct {
	seasons      *SeasonRepository
	participants *ParticipantRepository
	users        *UserRepository
	messages     *MessageRepository
	events       *EventRepository
}

// NewRepositories binds all repositories to db.
func NewRepositories(db DBTX) *Repositories {
	return &Repositories{
		seasons:      NewSeasonRepository(db),
		participants: NewParticipantRepository(db),
		users:        NewUserRepository(db),
		messages:     NewMessageRepository(db),
		events:       NewEventRepository(db),
	}
}

func (r *Repositories) Seasons() types.SeasonRepository           { return r.seasons }
func (r *Repositories) Participants() types.ParticipantRepository { return r.participants }
func (r *Repositories) Users() types.UserRepository               { return r.users }
func (r *Repositories) Messages() types.MessageRepository         { return r.messages }
func (r *Repositories) Events() types.EventRepository             { return r.events }

// TxManager runs units of work in serializable transactions. It implements
// types.TransactionManager.
//
// A unit of work that fails with a serialization conflict is replayed from
// the start, so fn must not retain state between invocations.
type TxManager struct {
	pool        TxBeginner
	maxAttempts int
}

// NewTxManager creates a TxManager over pool.
func NewTxManager(pool TxBeginner) *TxManager {
	return &TxManager{pool: pool, maxAttempts: defaultTxAttempts}
}

// RunInTx implements types.TransactionManager.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.runOnce(ctx, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// IsSerializationFailure reports whether err is a PostgreSQL serialization
// conflict anywhere in its chain.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateSerializationFailure
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
