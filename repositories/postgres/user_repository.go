package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, external_id, email, name, avatar_url, is_superuser, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.ExternalID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.IsSuperuser,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByExternalID retrieves a user by provider subject
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, models.NormalizeEmail(email))
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db, r.tx)
	user := &models.User{}
	var externalID sql.NullString

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&externalID,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if externalID.Valid {
		user.ExternalID = &externalID.String
	}

	return user, nil
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET external_id = $2,
		    email = $3,
		    name = $4,
		    avatar_url = $5,
		    updated_at = $6
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.ExternalID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", translateError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("user updated", zap.String("id", user.ID.String()))
	return nil
}

// Delete deletes a user
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`

	executor := GetExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("user deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{
		db:     r.db,
		tx:     boundTransaction(tx),
		logger: r.logger,
	}
}
