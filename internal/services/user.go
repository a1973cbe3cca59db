package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	codeLength = 6
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// UserService handles sign-in, session tokens and user settings
type UserService struct {
	users     repository.Users
	pairing   *PairingService
	jwtSecret string
	tokenTTL  time.Duration
	clock     Clock
	random    io.Reader
}

// NewUserService creates a new user service
func NewUserService(users repository.Users, pairing *PairingService, jwtSecret string, tokenTTL time.Duration, clock Clock) *UserService {
	if tokenTTL <= 0 {
		tokenTTL = 365 * 24 * time.Hour
	}
	return &UserService{
		users:     users,
		pairing:   pairing,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		clock:     clock,
		random:    rand.Reader,
	}
}

// SignInResult is returned after a successful sign-in
type SignInResult struct {
	User   *models.User   `json:"user"`
	Token  string         `json:"token"`
	Couple *models.Couple `json:"couple,omitempty"`
}

// SignIn creates the user on first sign-in, joins a couple that is waiting
// for them and issues a session token.
func (s *UserService) SignIn(ctx context.Context, identity *Identity) (*SignInResult, error) {
	if identity == nil || strings.TrimSpace(identity.ID) == "" {
		return nil, fmt.Errorf("%w: identity is required", models.ErrUnauthorized)
	}

	code := ""
	existing, err := s.users.GetByID(ctx, identity.ID)
	switch {
	case err == nil:
		code = existing.Code
	case errors.Is(err, models.ErrNotFound):
		if code, err = s.GenerateUniqueCode(ctx); err != nil {
			return nil, models.NewOpError(models.OpSignIn, err)
		}
	default:
		return nil, models.NewOpError(models.OpSignIn, err)
	}

	user, err := s.users.Upsert(ctx, &models.User{
		ID:          identity.ID,
		DisplayName: identity.DisplayName,
		Code:        code,
		AvatarURL:   identity.AvatarURL,
		Settings:    models.DefaultSettings(),
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return nil, models.NewOpError(models.OpSignIn, err)
	}

	result := &SignInResult{User: user}
	if user.CoupleID == nil {
		couple, err := s.pairing.JoinPending(ctx, user.ID)
		switch {
		case err == nil:
			result.Couple = couple
			result.User.CoupleID = &couple.ID
		case errors.Is(err, models.ErrNotPaired):
		default:
			// Sign-in still succeeds; the user can join explicitly later
			log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to join pending couple")
		}
	}

	if result.Token, err = s.GenerateJWT(user.ID); err != nil {
		return nil, models.NewOpError(models.OpSignIn, err)
	}

	log.Info().
		Str("user_id", user.ID).
		Bool("paired", result.User.CoupleID != nil).
		Msg("User signed in")

	return result, nil
}

// GenerateUniqueCode generates a unique 6-character pair code
func (s *UserService) GenerateUniqueCode(ctx context.Context) (string, error) {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code, err := generateCode(s.random)
		if err != nil {
			return "", err
		}
		exists, err := s.users.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxAttempts)
}

// generateCode generates a random 6-character code
func generateCode(random io.Reader) (string, error) {
	code := make([]byte, codeLength)
	base := big.NewInt(int64(len(codeChars)))
	for i := range code {
		n, err := rand.Int(random, base)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code), nil
}

// GenerateJWT generates a session token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.clock.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.tokenTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a session token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("%w: failed to parse token: %v", models.ErrUnauthorized, err)
	}

	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid token claims", models.ErrUnauthorized)
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: user_id not found in token", models.ErrUnauthorized)
	}

	return userID, nil
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateSettings validates and stores the user's settings
func (s *UserService) UpdateSettings(ctx context.Context, userID string, settings models.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.users.UpdateSettings(ctx, userID, settings); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return models.NewOpError(models.OpUpdateSettings, err)
	}
	return nil
}
