package handlers

import (
	"net/http"

	"marshmallow-backend/internal/middleware"
	"marshmallow-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CoupleHandler handles couple-related HTTP requests
type CoupleHandler struct {
	pairing *services.PairingService
}

// NewCoupleHandler creates a new couple handler
func NewCoupleHandler(pairing *services.PairingService) *CoupleHandler {
	return &CoupleHandler{
		pairing: pairing,
	}
}

// CreateCouple handles POST /api/v1/couples
func (h *CoupleHandler) CreateCouple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.CreateCoupleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PartnerCode == "" {
		respondError(w, "partner_code is required", http.StatusBadRequest)
		return
	}

	couple, err := h.pairing.CreateCouple(ctx, userID, req.PartnerCode)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to create couple")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, couple)
}

// JoinCouple handles POST /api/v1/couples/{couple_id}/join
func (h *CoupleHandler) JoinCouple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	coupleID := chi.URLParam(r, "couple_id")

	couple, err := h.pairing.JoinCouple(ctx, userID, coupleID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("couple_id", coupleID).
			Msg("Failed to join couple")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, couple)
}

// GetCouple handles GET /api/v1/couple
func (h *CoupleHandler) GetCouple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	couple, err := h.pairing.CoupleForUser(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, couple)
}
