package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"marshmallow-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondServiceError maps a service error to a status code and a message
// the client can show as is.
func respondServiceError(w http.ResponseWriter, err error) {
	var opErr *models.OpError
	switch {
	case errors.As(err, &opErr):
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: opErr.Message, Code: opErr.Op, Retryable: true})
	case errors.Is(err, models.ErrInvalidEvent):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_event"})
	case errors.Is(err, models.ErrValidation):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
	case errors.Is(err, models.ErrUnauthorized):
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
	case errors.Is(err, models.ErrNotPaired):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: "waiting for partner", Code: "not_paired"})
	case errors.Is(err, models.ErrNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, models.ErrCheckInExists):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "checkin_exists"})
	case errors.Is(err, models.ErrCoupleFull):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "couple_full"})
	case errors.Is(err, models.ErrAlreadyPaired):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "already_paired"})
	case errors.Is(err, models.ErrInvalidCoupleSize):
		log.Error().Err(err).Msg("Couple integrity violation")
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "something went wrong", Code: "integrity"})
	default:
		// Read paths: transient store errors are offered to the user as a retry
		log.Error().Err(err).Msg("Request failed")
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "couldn't load, please try again", Retryable: true})
	}
}

// decodeJSON reads a size-limited JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// queryInt parses an integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
