package repository

import (
	"context"
	"errors"
	"fmt"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, display_name, code, couple_id, avatar_url, settings, created_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.DisplayName, &user.Code, &user.CoupleID,
		&user.AvatarURL, &user.Settings, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert creates a user or refreshes the identity provider fields
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, display_name, code, avatar_url, settings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url)
		RETURNING ` + userColumns
	stored, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID, user.DisplayName, user.Code, user.AvatarURL, user.Settings, user.CreatedAt,
	))
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, fmt.Errorf("%w: pair code already taken", models.ErrValidation)
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// GetByCode retrieves a user by pair code
func (r *UserRepository) GetByCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE code = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// CodeExists checks if a code already exists
func (r *UserRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE code = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}
	return exists, nil
}

// SetCoupleID assigns the user's couple if none is set yet
func (r *UserRepository) SetCoupleID(ctx context.Context, userID, coupleID string) error {
	query := `UPDATE users SET couple_id = $2 WHERE id = $1 AND couple_id IS NULL`
	result, err := r.db.Exec(ctx, query, userID, coupleID)
	if err != nil {
		return fmt.Errorf("failed to set couple id: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var current *string
	err = r.db.QueryRow(ctx, `SELECT couple_id FROM users WHERE id = $1`, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("user %w", models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read couple id: %w", err)
	}
	if current != nil && *current == coupleID {
		return nil
	}
	return models.ErrAlreadyPaired
}

// UpdateSettings replaces the user's settings
func (r *UserRepository) UpdateSettings(ctx context.Context, userID string, settings models.UserSettings) error {
	query := `UPDATE users SET settings = $2 WHERE id = $1`
	result, err := r.db.Exec(ctx, query, userID, settings)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %w", models.ErrNotFound)
	}
	return nil
}
