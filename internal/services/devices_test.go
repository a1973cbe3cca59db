package services

import (
	"context"
	"strings"
	"testing"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceRegistry_LastRegistrationWins(t *testing.T) {
	r := NewDeviceRegistry(memstore.New().DeviceTokens())
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "u1", "device-a"))
	require.NoError(t, r.Register(ctx, "u1", "device-b"))

	addr, ok, err := r.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "device-b", addr)
}

func TestDeviceRegistry_LookupMissing(t *testing.T) {
	r := NewDeviceRegistry(memstore.New().DeviceTokens())

	addr, ok, err := r.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, addr)
}

func TestDeviceRegistry_RejectsBadAddress(t *testing.T) {
	r := NewDeviceRegistry(memstore.New().DeviceTokens())
	ctx := context.Background()

	assert.ErrorIs(t, r.Register(ctx, "u1", "   "), models.ErrValidation)
	assert.ErrorIs(t, r.Register(ctx, "u1", strings.Repeat("a", maxAddressLength+1)), models.ErrValidation)
}
