package services

import (
	"context"
	"fmt"
	"strings"

	"marshmallow-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified result of the out-of-band sign-in flow
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   *string
}

// IdentityVerifier turns an identity provider token into a verified identity
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

type identityClaims struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// JWTIdentityVerifier verifies HS256 identity tokens minted by the sign-in gateway
type JWTIdentityVerifier struct {
	secret []byte
	issuer string
}

// NewJWTIdentityVerifier creates a verifier for tokens signed with secret.
// When issuer is set the token's iss claim must match it.
func NewJWTIdentityVerifier(secret, issuer string) *JWTIdentityVerifier {
	return &JWTIdentityVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify checks the signature, expiry and issuer and extracts the identity triple
func (v *JWTIdentityVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: identity token required", models.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims identityClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: identity token has no subject", models.ErrUnauthorized)
	}

	identity := &Identity{
		ID:          claims.Subject,
		DisplayName: strings.TrimSpace(claims.Name),
	}
	if claims.Picture != "" {
		picture := claims.Picture
		identity.AvatarURL = &picture
	}
	return identity, nil
}
