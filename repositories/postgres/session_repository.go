package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
	"go.uber.org/zap"
)

// SessionRepository implements the repositories.SessionRepository interface.
// Credentials are stored as digests only.
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) repositories.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db, nil)
	_, err := executor.ExecContext(ctx, query,
		session.ID,
		repositories.TokenDigest(session.Token),
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", translateError(err))
	}

	r.logger.Debug("session created",
		zap.String("id", session.ID.String()),
		zap.String("user_id", session.UserID.String()))
	return nil
}

// GetByToken retrieves the session bound to a credential
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, user_id, expires_at, created_at
		FROM sessions
		WHERE token_hash = $1
	`

	executor := GetExecutor(ctx, r.db, nil)
	session := &models.Session{}

	err := executor.QueryRowContext(ctx, query, repositories.TokenDigest(token)).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteByToken deletes the session bound to a credential
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	query := `DELETE FROM sessions WHERE token_hash = $1`

	executor := GetExecutor(ctx, r.db, nil)
	result, err := executor.ExecContext(ctx, query, repositories.TokenDigest(token))
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("session deleted", zap.Int64("rows", rowsAffected))
	return rowsAffected, nil
}

// DeleteByUserID deletes every session owned by a user
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`

	executor := GetExecutor(ctx, r.db, nil)
	result, err := executor.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("user sessions deleted",
		zap.String("user_id", userID.String()),
		zap.Int64("rows", rowsAffected))
	return rowsAffected, nil
}

// DeleteExpired deletes sessions whose expiry has elapsed
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`

	executor := GetExecutor(ctx, r.db, nil)
	result, err := executor.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
