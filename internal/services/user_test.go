package services

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"marshmallow-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIn_CreatesUserAndToken(t *testing.T) {
	f := newFixture(t)
	avatar := "https://example.com/a.png"

	res, err := f.users.SignIn(context.Background(), &Identity{ID: "u1", DisplayName: "Ana", AvatarURL: &avatar})
	require.NoError(t, err)

	assert.Equal(t, "u1", res.User.ID)
	assert.Len(t, res.User.Code, codeLength)
	assert.Nil(t, res.User.CoupleID)
	assert.Nil(t, res.Couple)
	assert.Equal(t, models.DefaultSettings(), res.User.Settings)

	userID, err := f.users.ValidateJWT(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestSignIn_KeepsCodeAndRefreshesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.SignIn(ctx, &Identity{ID: "u1", DisplayName: "Ana"})
	require.NoError(t, err)
	second, err := f.users.SignIn(ctx, &Identity{ID: "u1", DisplayName: "Ana B."})
	require.NoError(t, err)

	assert.Equal(t, first.User.Code, second.User.Code)
	assert.Equal(t, "Ana B.", second.User.DisplayName)
}

func TestSignIn_RequiresIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.SignIn(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.users.SignIn(context.Background(), &Identity{ID: "  "})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestValidateJWT_Rejects(t *testing.T) {
	f := newFixture(t)
	other := NewUserService(f.store.Users(), f.pairing, "other-secret", time.Hour, f.clock)

	token, err := other.GenerateJWT("u1")
	require.NoError(t, err)
	_, err = f.users.ValidateJWT(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = f.users.ValidateJWT(signed)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.users.ValidateJWT("garbage")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode(rand.Reader)
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, c := range code {
			assert.Contains(t, codeChars, string(c))
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestSignIn_RandomSourceFailure(t *testing.T) {
	f := newFixture(t)
	f.users.random = failingReader{}

	_, err := generateCode(failingReader{})
	assert.ErrorContains(t, err, "entropy unavailable")

	_, err = f.users.SignIn(context.Background(), &Identity{ID: "u1", DisplayName: "Ana"})
	var opErr *models.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.OpSignIn, opErr.Op)

	_, err = f.users.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "u1", "Ana")

	err := f.users.UpdateSettings(ctx, "u1", models.UserSettings{MorningReminder: "7am", EveningReminder: "22:00"})
	assert.ErrorIs(t, err, models.ErrValidation)

	want := models.UserSettings{MorningReminder: "07:30", EveningReminder: "22:15", WifiOnlySync: true}
	require.NoError(t, f.users.UpdateSettings(ctx, "u1", want))

	user, err := f.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, user.Settings)

	err = f.users.UpdateSettings(ctx, "nobody", want)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
