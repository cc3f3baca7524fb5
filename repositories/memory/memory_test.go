package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
)

func ptr(s string) *string { return &s }

func TestUserRepository_Uniqueness(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	alice := models.NewUser("alice@example.com", "Alice", "", ptr("g-1"))
	require.NoError(t, repos.Users.Create(ctx, alice))

	t.Run("duplicate email", func(t *testing.T) {
		err := repos.Users.Create(ctx, models.NewUser("ALICE@example.com", "Other", "", nil))
		assert.ErrorIs(t, err, repositories.ErrConflict)
	})

	t.Run("duplicate external id", func(t *testing.T) {
		err := repos.Users.Create(ctx, models.NewUser("bob@example.com", "Bob", "", ptr("g-1")))
		assert.ErrorIs(t, err, repositories.ErrConflict)
	})

	t.Run("lookups", func(t *testing.T) {
		byExt, err := repos.Users.GetByExternalID(ctx, "g-1")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byExt.ID)

		byEmail, err := repos.Users.GetByEmail(ctx, "Alice@Example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byEmail.ID)

		_, err = repos.Users.GetByExternalID(ctx, "g-404")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		u, err := repos.Users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		u.Name = "mutated"

		again, err := repos.Users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", again.Name)
	})

	t.Run("update missing user", func(t *testing.T) {
		err := repos.Users.Update(ctx, models.NewUser("ghost@example.com", "", "", nil))
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := store.Repositories()

	user := models.NewUser("alice@example.com", "Alice", "", nil)
	require.NoError(t, repos.Users.Create(ctx, user))

	now := time.Now().UTC()
	newSession := func(token string, expires time.Time) *models.Session {
		return &models.Session{ID: uuid.New(), UserID: user.ID, Token: token, ExpiresAt: expires, CreatedAt: now}
	}

	require.NoError(t, repos.Sessions.Create(ctx, newSession("t1", now.Add(time.Hour))))
	require.NoError(t, repos.Sessions.Create(ctx, newSession("t2", now.Add(-time.Minute))))

	t.Run("duplicate credential conflicts", func(t *testing.T) {
		err := repos.Sessions.Create(ctx, newSession("t1", now.Add(time.Hour)))
		assert.ErrorIs(t, err, repositories.ErrConflict)
	})

	t.Run("unknown owner rejected", func(t *testing.T) {
		s := newSession("t3", now.Add(time.Hour))
		s.UserID = uuid.New()
		assert.ErrorIs(t, repos.Sessions.Create(ctx, s), repositories.ErrNotFound)
	})

	t.Run("lookup never returns the credential", func(t *testing.T) {
		s, err := repos.Sessions.GetByToken(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Empty(t, s.Token)

		missing, err := repos.Sessions.GetByToken(ctx, "nope")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("purge expired", func(t *testing.T) {
		n, err := repos.Sessions.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		s, _ := repos.Sessions.GetByToken(ctx, "t2")
		assert.Nil(t, s)
	})

	t.Run("delete by token is idempotent", func(t *testing.T) {
		require.NoError(t, repos.Sessions.Create(ctx, newSession("t5", now.Add(time.Hour))))

		n, err := repos.Sessions.DeleteByToken(ctx, "t5")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repos.Sessions.DeleteByToken(ctx, "t5")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("deleting a user removes their sessions", func(t *testing.T) {
		require.NoError(t, repos.Sessions.Create(ctx, newSession("t4", now.Add(time.Hour))))
		require.NoError(t, repos.Users.Delete(ctx, user.ID))

		s, _ := repos.Sessions.GetByToken(ctx, "t4")
		assert.Nil(t, s)
	})
}

func TestSessionRepository_DeleteByUserID(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	a := models.NewUser("a@example.com", "", "", nil)
	b := models.NewUser("b@example.com", "", "", nil)
	require.NoError(t, repos.Users.Create(ctx, a))
	require.NoError(t, repos.Users.Create(ctx, b))

	exp := time.Now().Add(time.Hour)
	for _, tok := range []string{"a1", "a2"} {
		require.NoError(t, repos.Sessions.Create(ctx, &models.Session{ID: uuid.New(), UserID: a.ID, Token: tok, ExpiresAt: exp}))
	}
	require.NoError(t, repos.Sessions.Create(ctx, &models.Session{ID: uuid.New(), UserID: b.ID, Token: "b1", ExpiresAt: exp}))

	n, err := repos.Sessions.DeleteByUserID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	s, err := repos.Sessions.GetByToken(ctx, "b1")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestTransactionManager_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	tx, err := NewStore().TransactionManager().Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v", tx.Context().Value(key{}))
	assert.NoError(t, tx.Commit())
}
