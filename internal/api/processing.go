package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/processing"
)

// setProcessingStateRequest is the request body for
// PUT /devices/{id}/processing-state.
type setProcessingStateRequest struct {
	State string `json:"state"`
}

// handleGetProcessingState returns a camera's current processing state and
// whether a transition is in flight.
//
// GET /devices/{id}/processing-state
func (s *Server) handleGetProcessingState(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":              dev.ID,
		"processing_state":       dev.ProcessingState,
		"pending_update":         dev.PendingUpdate,
		"pending_since":          dev.PendingSince,
		"scheduled_for_deletion": dev.ScheduledForDeletion,
	})
}

// handleSetProcessingState requests a processing-state transition.
//
// The transition is dispatched to the instance manager and confirmed
// asynchronously, so a successful request returns 202 Accepted with the
// device still marked pending. Clients observe the outcome via
// GET /devices/{id}/processing-state/stream or the WebSocket feed.
//
// PUT /devices/{id}/processing-state
func (s *Server) handleSetProcessingState(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "device ID must be an integer")
		return
	}

	var req setProcessingStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.State == "" {
		writeBadRequest(w, "state is required")
		return
	}

	if err := s.lifecycle.StartUpdate(r.Context(), id, req.State); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidState):
			writeBadRequest(w, "unknown processing state: "+req.State)
		case errors.Is(err, processing.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrUpdatePending):
			writeConflict(w, "a state transition is already pending for this device")
		case errors.Is(err, device.ErrScheduledForDeletion):
			writeConflict(w, "device is scheduled for deletion")
		default:
			s.logger.Error("failed to start state transition", "error", err, "device_id", id)
			writeInternalError(w, "failed to start state transition")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id":    id,
		"target_state": req.State,
		"status":       "pending",
	})
}

// handleStreamProcessingState streams state snapshots for one camera as
// server-sent events until the device settles into a confirmed state.
//
// While a transition is in flight the stream emits PENDING on each poll;
// the final event carries the confirmed state and the stream closes.
// Disconnecting cancels the underlying poll.
//
// GET /devices/{id}/processing-state/stream
func (s *Server) handleStreamProcessingState(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "device ID must be an integer")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming unsupported")
		return
	}

	// Resolve existence up front so a missing device is a clean 404
	// rather than an error event on an already-committed stream.
	if _, err := s.devices.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "error", err, "device_id", id)
		writeInternalError(w, "failed to get device")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	interval := time.Duration(s.procCfg.WatchPollInterval) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond //nolint:mnd // fallback poll interval
	}

	events := s.lifecycle.WatchState(r.Context(), id, interval)
	for ev := range events {
		if ev.Err != nil {
			// Device vanished mid watch; tell the client and stop.
			writeSSE(w, "error", map[string]string{"message": "device no longer exists"})
			flusher.Flush()
			return
		}
		writeSSE(w, "state", map[string]any{
			"device_id": id,
			"state":     ev.State,
		})
		flusher.Flush()
	}
}

// writeSSE writes one server-sent event with a JSON data payload.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	//nolint:errcheck // Best-effort write; client disconnects surface via context
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
