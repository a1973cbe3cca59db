package handlers

import (
	"net/http"

	"marshmallow-backend/internal/middleware"
	"marshmallow-backend/internal/services"
)

// DeviceHandler handles push device registration
type DeviceHandler struct {
	devices *services.DeviceRegistry
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices *services.DeviceRegistry) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// RegisterDeviceRequest carries the device's push address
type RegisterDeviceRequest struct {
	Address string `json:"address"`
}

// Register handles PUT /api/v1/devices
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req RegisterDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.devices.Register(ctx, userID, req.Address); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
