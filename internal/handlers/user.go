package handlers

import (
	"net/http"

	"marshmallow-backend/internal/middleware"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles sign-in and profile HTTP requests
type UserHandler struct {
	userService *services.UserService
	verifier    services.IdentityVerifier
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, verifier services.IdentityVerifier) *UserHandler {
	return &UserHandler{
		userService: userService,
		verifier:    verifier,
	}
}

// SignInRequest carries the identity provider's token
type SignInRequest struct {
	IdentityToken string `json:"identity_token"`
}

// SignIn handles POST /api/v1/auth/sign-in
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identity, err := h.verifier.Verify(ctx, req.IdentityToken)
	if err != nil {
		log.Warn().Err(err).Msg("Identity verification failed")
		respondError(w, "Invalid identity token", http.StatusUnauthorized)
		return
	}

	result, err := h.userService.SignIn(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to sign in")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// UpdateSettings handles PUT /api/v1/me/settings
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var settings models.UserSettings
	if !decodeJSON(w, r, &settings) {
		return
	}

	if err := h.userService.UpdateSettings(ctx, userID, settings); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}
