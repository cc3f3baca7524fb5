package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-service/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("record conflicts with an existing record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository is the identity store
type UserRepository interface {
	// Create creates a new user. Returns ErrConflict when the email or
	// external id is already taken.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByExternalID retrieves a user by provider subject. Returns ErrNotFound when absent.
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)

	// GetByEmail retrieves a user by normalized email. Returns ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Update updates profile fields and the external id link
	Update(ctx context.Context, user *models.User) error

	// Delete deletes a user and, by cascade, all of their sessions
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// SessionRepository is the session store. Sessions are immutable once
// created; revocation is deletion.
type SessionRepository interface {
	// Create persists a new session. Returns ErrConflict on credential collision.
	Create(ctx context.Context, session *models.Session) error

	// GetByToken retrieves the session bound to a credential.
	// Returns nil, nil when no such session exists.
	GetByToken(ctx context.Context, token string) (*models.Session, error)

	// DeleteByToken deletes the session bound to a credential and returns
	// the number of rows removed (0 or 1). Idempotent.
	DeleteByToken(ctx context.Context, token string) (int64, error)

	// DeleteByUserID deletes every session owned by a user. Idempotent.
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteExpired deletes sessions whose expiry is at or before the given instant
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users    UserRepository
	Sessions SessionRepository
}
