package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
	"go.uber.org/zap"
)

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Token:     "signed.credential.value",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	t.Run("stores the digest, never the credential", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
			WithArgs(session.ID, repositories.TokenDigest(session.Token), session.UserID, session.ExpiresAt, session.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, session))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credential collision is a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "sessions_token_hash_key"})

		assert.ErrorIs(t, repo.Create(ctx, session), repositories.ErrConflict)
	})
}

func TestSessionRepository_GetByToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	id, userID := uuid.New(), uuid.New()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
			WithArgs(repositories.TokenDigest("tok")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
				AddRow(id.String(), userID.String(), now.Add(time.Hour), now))

		session, err := repo.GetByToken(ctx, "tok")
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, id, session.ID)
		assert.Equal(t, userID, session.UserID)
		assert.Empty(t, session.Token)
	})

	t.Run("absent returns nil without error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}))

		session, err := repo.GetByToken(ctx, "tok")
		assert.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
			WillReturnError(errors.New("connection refused"))

		session, err := repo.GetByToken(ctx, "tok")
		assert.Nil(t, session)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestSessionRepository_Deletes(t *testing.T) {
	ctx := context.Background()

	t.Run("delete by token is idempotent", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token_hash = $1")).
			WithArgs(repositories.TokenDigest("gone")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		n, err := repo.DeleteByToken(ctx, "gone")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete by token reports the removed row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token_hash = $1")).
			WithArgs(repositories.TokenDigest("live")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.DeleteByToken(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete by user id", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())
		userID := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1")).
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.DeleteByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("delete expired", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())
		cutoff := time.Now().UTC()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= $1")).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.DeleteExpired(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})
}
