package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/countcam/countcam-core/internal/device"
)

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	StreamURL   string  `json:"stream_url"`
}

// updateDeviceRequest is the request body for PATCH /devices/{id}.
// Processing state is deliberately absent; transitions go through
// PUT /devices/{id}/processing-state so the instance manager stays in sync.
type updateDeviceRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	StreamURL   *string `json:"stream_url,omitempty"`
}

// deviceIDParam parses the {id} route parameter as a device ID.
func deviceIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// handleListDevices returns all registered cameras.
//
// GET /devices?state=ACTIVE filters by processing state.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []device.Device
		err     error
	)

	if raw := r.URL.Query().Get("state"); raw != "" {
		state, perr := device.ParseProcessingState(raw)
		if perr != nil {
			writeBadRequest(w, "unknown processing state: "+raw)
			return
		}
		devices, err = s.devices.ListByState(r.Context(), state)
	} else {
		devices, err = s.devices.List(r.Context())
	}

	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice registers a new camera. New cameras start INACTIVE;
// processing only begins once a transition is requested and confirmed.
//
// POST /devices
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{
		Name:            req.Name,
		Description:     req.Description,
		StreamURL:       req.StreamURL,
		ProcessingState: device.StateInactive,
	}

	if err := device.ValidateDevice(dev); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.devices.Create(r.Context(), dev); err != nil {
		s.logger.Error("failed to create device", "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	s.logger.Info("device created", "device_id", dev.ID, "name", dev.Name)
	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a single camera by ID.
//
// GET /devices/{id}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "device ID must be an integer")
		return
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "error", err, "device_id", id)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice patches a camera's metadata.
//
// PATCH /devices/{id}
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "device ID must be an integer")
		return
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "error", err, "device_id", id)
		writeInternalError(w, "failed to get device")
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Description != nil {
		dev.Description = req.Description
	}
	if req.StreamURL != nil {
		dev.StreamURL = *req.StreamURL
	}

	if err := device.ValidateDevice(dev); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.devices.Update(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to update device", "error", err, "device_id", id)
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice starts the removal handshake for a camera.
//
// The record is not deleted immediately. Removal is dispatched to the
// instance manager and the row is only dropped once the manager confirms
// the camera instance is gone, so the response is 202 Accepted.
//
// DELETE /devices/{id}
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "device ID must be an integer")
		return
	}

	if err := s.lifecycle.ScheduleDelete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrUpdatePending):
			writeConflict(w, "a state transition is already pending for this device")
		case errors.Is(err, device.ErrScheduledForDeletion):
			writeConflict(w, "device is already scheduled for deletion")
		default:
			s.logger.Error("failed to schedule device removal", "error", err, "device_id", id)
			writeInternalError(w, "failed to schedule device removal")
		}
		return
	}

	s.logger.Info("device removal scheduled", "device_id", id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"status":    "deletion_scheduled",
	})
}
