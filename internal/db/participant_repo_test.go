package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giftclub/internal/types"
)

func participantValues(id, userID int64, country *string, receiverID *int64) []any {
	return []any{
		id,
		int64(2026),
		userID,
		"Ivan Petrov",
		"101000",
		"Moscow, Tverskaya 1",
		country,
		receiverID,
		nil,
		nil,
		time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestParticipantRepository_ListBySeason(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	ru := "RU"
	receiver := int64(2)
	rows := newMockRows([][]any{
		participantValues(1, 10, &ru, &receiver),
		participantValues(2, 20, nil, nil),
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{int64(2026)}).Return(rows, nil)

	ps, err := repo.ListBySeason(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "RU", ps[0].CountryCode())
	require.NotNil(t, ps[0].ReceiverID)
	assert.Equal(t, int64(2), *ps[0].ReceiverID)
	assert.Equal(t, "", ps[1].CountryCode())
	assert.Nil(t, ps[1].ReceiverID)
	assert.True(t, rows.closed)
}

func TestParticipantRepository_ListBySeason_IterationError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	rows := newMockRows(nil)
	rows.errVal = errors.New("connection lost")
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListBySeason(ctx, 2026)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestParticipantRepository_FindSanta(t *testing.T) {
	t.Run("returns giver", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewParticipantRepository(db)
		ctx := context.Background()

		receiver := int64(7)
		db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
			return containsAll(sql, "receiver_id = $1")
		}), []any{int64(7)}).Return(valuesRow(participantValues(3, 30, nil, &receiver)...))

		santa, err := repo.FindSanta(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, santa)
		assert.Equal(t, int64(3), santa.ID)
	})

	t.Run("nobody gives to participant", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewParticipantRepository(db)
		ctx := context.Background()

		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		santa, err := repo.FindSanta(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, santa)
	})
}

func TestParticipantRepository_GetBySeasonAndUser_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{int64(2026), int64(10)}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetBySeasonAndUser(ctx, 2026, 10)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundParticipant))
}

func TestParticipantRepository_Create(t *testing.T) {
	created := time.Date(2026, 11, 5, 12, 0, 0, 0, time.UTC)

	t.Run("fills id", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewParticipantRepository(db)
		ctx := context.Background()

		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(valuesRow(int64(55), created))

		p := &types.Participant{SeasonID: 2026, UserID: 10, Fullname: "A", Postcode: "1", Address: "B"}
		require.NoError(t, repo.Create(ctx, p))
		assert.Equal(t, int64(55), p.ID)
		assert.Equal(t, created, p.CreatedAt)
	})

	t.Run("duplicate enrollment", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewParticipantRepository(db)
		ctx := context.Background()

		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: &pgconn.PgError{Code: "23505"}})

		err := repo.Create(ctx, &types.Participant{SeasonID: 2026, UserID: 10})
		assert.True(t, types.HasCode(err, types.ErrCodeConflictAlreadyEnrolled))
	})
}

func TestParticipantRepository_SetReceivers(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	clearCall := db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "SET receiver_id = NULL")
	}), []any{int64(2026)}).Return(pgconn.NewCommandTag("UPDATE 3"), nil)

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "unnest")
	}), []any{int64(2026), []int64{1, 2, 3}, []int64{2, 3, 1}}).
		Return(pgconn.NewCommandTag("UPDATE 3"), nil).
		NotBefore(clearCall)

	err := repo.SetReceivers(ctx, 2026, []types.Assignment{
		{GiverID: 1, ReceiverID: 2},
		{GiverID: 2, ReceiverID: 3},
		{GiverID: 3, ReceiverID: 1},
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestParticipantRepository_SetReceivers_ForeignParticipant(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "SET receiver_id = NULL")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "unnest")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 2"), nil)

	err := repo.SetReceivers(ctx, 2026, []types.Assignment{
		{GiverID: 1, ReceiverID: 2},
		{GiverID: 2, ReceiverID: 3},
		{GiverID: 99, ReceiverID: 1},
	})
	assert.True(t, types.HasCode(err, types.ErrCodeInternalInvariant))
}

func TestParticipantRepository_MarkShipped_Twice(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "gift_shipped_at IS NULL")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkShipped(ctx, 1, time.Now())
	assert.True(t, types.HasCode(err, types.ErrCodeConflictAlreadyShipped))
}

func TestParticipantRepository_Delete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewParticipantRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{int64(404)}).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.Delete(ctx, 404)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundParticipant))
}
