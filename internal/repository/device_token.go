package repository

import (
	"context"
	"fmt"

	"marshmallow-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceTokenRepository keeps the single push address per user
type DeviceTokenRepository struct {
	db *pgxpool.Pool
}

// NewDeviceTokenRepository creates a new device token repository
func NewDeviceTokenRepository(db *pgxpool.Pool) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// Upsert overwrites the user's push address
func (r *DeviceTokenRepository) Upsert(ctx context.Context, userID, address string) error {
	query := `
		INSERT INTO device_tokens (user_id, address, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET address = EXCLUDED.address, updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, userID, address); err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

// Get retrieves the user's push address
func (r *DeviceTokenRepository) Get(ctx context.Context, userID string) (*models.DeviceToken, error) {
	query := `SELECT user_id, address, updated_at FROM device_tokens WHERE user_id = $1`
	var token models.DeviceToken
	err := r.db.QueryRow(ctx, query, userID).Scan(&token.UserID, &token.Address, &token.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "device token")
	}
	return &token, nil
}
