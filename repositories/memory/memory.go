// Package memory provides in-process implementations of the identity and
// session stores. They enforce the same uniqueness rules as the Postgres
// schema and are used for local development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
)

// Store holds users and sessions behind a single lock
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	sessions map[string]*models.Session // keyed by token digest
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[string]*models.Session),
	}
}

// Repositories returns repository views over the store
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:    &UserRepository{store: s},
		Sessions: &SessionRepository{store: s},
	}
}

// TransactionManager returns a transaction manager that runs functions
// directly; each repository call is already atomic.
func (s *Store) TransactionManager() repositories.TransactionManager {
	return txManager{}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.ExternalID != nil {
		ext := *u.ExternalID
		c.ExternalID = &ext
	}
	return &c
}

// UserRepository is the in-memory identity store
type UserRepository struct {
	store *Store
}

// uniqueLocked reports whether user's email and external id are free.
// Caller holds the lock.
func (r *UserRepository) uniqueLocked(user *models.User) bool {
	for id, u := range r.store.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email {
			return false
		}
		if user.HasExternalID() && u.LinkedTo(*user.ExternalID) {
			return false
		}
	}
	return true
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; ok || !r.uniqueLocked(user) {
		return repositories.ErrConflict
	}
	r.store.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if u, ok := r.store.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, repositories.ErrNotFound
}

// GetByExternalID retrieves a user by provider subject
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.LinkedTo(externalID) })
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.users[user.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if !r.uniqueLocked(user) {
		return repositories.ErrConflict
	}
	updated := cloneUser(user)
	updated.CreatedAt = existing.CreatedAt
	updated.IsSuperuser = existing.IsSuperuser
	r.store.users[user.ID] = updated
	return nil
}

// Delete deletes a user and their sessions
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.store.users, id)
	for digest, s := range r.store.sessions {
		if s.UserID == id {
			delete(r.store.sessions, digest)
		}
	}
	return nil
}

// WithTx returns the repository itself
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return r
}

// SessionRepository is the in-memory session store
type SessionRepository struct {
	store *Store
}

// Create persists a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	digest := repositories.TokenDigest(session.Token)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[digest]; ok {
		return repositories.ErrConflict
	}
	if _, ok := r.store.users[session.UserID]; !ok {
		return repositories.ErrNotFound
	}
	stored := *session
	stored.Token = ""
	r.store.sessions[digest] = &stored
	return nil
}

// GetByToken retrieves the session bound to a credential
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if s, ok := r.store.sessions[repositories.TokenDigest(token)]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

// DeleteByToken deletes the session bound to a credential
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	digest := repositories.TokenDigest(token)
	if _, ok := r.store.sessions[digest]; !ok {
		return 0, nil
	}
	delete(r.store.sessions, digest)
	return 1, nil
}

// DeleteByUserID deletes every session owned by a user
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.deleteWhere(func(s *models.Session) bool { return s.UserID == userID }), nil
}

// DeleteExpired deletes sessions whose expiry has elapsed
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(func(s *models.Session) bool { return s.IsExpired(before) }), nil
}

func (r *SessionRepository) deleteWhere(match func(*models.Session) bool) int64 {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for digest, s := range r.store.sessions {
		if match(s) {
			delete(r.store.sessions, digest)
			n++
		}
	}
	return n
}

type txManager struct{}

func (txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &tx{ctx: ctx}, nil
}

type tx struct {
	ctx context.Context
}

func (*tx) Commit() error              { return nil }
func (*tx) Rollback() error            { return nil }
func (t *tx) Context() context.Context { return t.ctx }
