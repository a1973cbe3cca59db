package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const maxAddressLength = 512

// DeviceRegistry keeps the single most recently registered push address per user
type DeviceRegistry struct {
	tokens repository.DeviceTokens
}

// NewDeviceRegistry creates a new device registry
func NewDeviceRegistry(tokens repository.DeviceTokens) *DeviceRegistry {
	return &DeviceRegistry{tokens: tokens}
}

// Register replaces the user's push address
func (r *DeviceRegistry) Register(ctx context.Context, userID, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: device address is required", models.ErrValidation)
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("%w: device address is too long", models.ErrValidation)
	}

	if err := r.tokens.Upsert(ctx, userID, address); err != nil {
		return models.NewOpError(models.OpRegisterDevice, err)
	}

	log.Debug().Str("user_id", userID).Msg("Device registered")
	return nil
}

// Lookup returns the user's push address; ok is false when none is registered
func (r *DeviceRegistry) Lookup(ctx context.Context, userID string) (string, bool, error) {
	token, err := r.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up device: %w", err)
	}
	return token.Address, true, nil
}
