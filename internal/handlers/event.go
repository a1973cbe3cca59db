package handlers

import (
	"net/http"

	"marshmallow-backend/internal/middleware"
	"marshmallow-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// EventHandler handles messages, check-ins, memories and presets
type EventHandler struct {
	events *services.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{
		events: events,
	}
}

// SendMessage handles POST /api/v1/messages
func (h *EventHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var in services.MessageInput
	if !decodeJSON(w, r, &in) {
		return
	}

	msg, err := h.events.AppendMessage(ctx, userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}

// ListMessages handles GET /api/v1/messages
func (h *EventHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	msgs, err := h.events.ListMessages(ctx, userID, queryInt(r, "limit", defaultListLimit, maxListLimit))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// MarkRead handles POST /api/v1/messages/{message_id}/read
func (h *EventHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.events.MarkMessageRead(ctx, userID, chi.URLParam(r, "message_id")); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateCheckIn handles POST /api/v1/checkins
func (h *EventHandler) CreateCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var in services.CheckInInput
	if !decodeJSON(w, r, &in) {
		return
	}

	checkIn, err := h.events.AppendCheckIn(ctx, userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkIn)
}

// ListCheckIns handles GET /api/v1/checkins?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *EventHandler) ListCheckIns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	q := r.URL.Query()

	checkIns, err := h.events.ListCheckIns(ctx, userID, q.Get("from"), q.Get("to"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"checkins": checkIns})
}

// CreateMemory handles POST /api/v1/memories
func (h *EventHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var in services.MemoryInput
	if !decodeJSON(w, r, &in) {
		return
	}

	memory, err := h.events.AppendMemory(ctx, userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, memory)
}

// ListMemories handles GET /api/v1/memories
func (h *EventHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	memories, err := h.events.ListMemories(ctx, userID, queryInt(r, "limit", defaultListLimit, maxListLimit))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"memories": memories})
}

// ListPresets handles GET /api/v1/presets
func (h *EventHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.events.ListPresets(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"presets": presets})
}
