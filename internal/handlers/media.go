package handlers

import (
	"net/http"

	"marshmallow-backend/internal/middleware"
	"marshmallow-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// MediaHandler handles photo and video upload requests
type MediaHandler struct {
	media *services.MediaService
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(media *services.MediaService) *MediaHandler {
	return &MediaHandler{
		media: media,
	}
}

// CreateUploadURL handles POST /api/v1/media/upload
func (h *MediaHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.UploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Kind == "" {
		req.Kind = services.MediaKindPhoto
	}
	if req.ContentType == "" {
		req.ContentType = "image/jpeg" // Default
	}

	response, err := h.media.CreateUploadURL(ctx, userID, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("kind", string(req.Kind)).
			Msg("Failed to generate pre-signed URL")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("asset_url", response.AssetURL).
		Msg("Pre-signed URL generated")

	respondJSON(w, http.StatusOK, response)
}
