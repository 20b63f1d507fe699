package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/countcam/countcam-core/internal/device"
)

// maxGroupNameLength bounds group names at the API boundary.
const maxGroupNameLength = 128

// setGroupMembersRequest is the request body for PUT /groups/{id}/devices.
type setGroupMembersRequest struct {
	DeviceIDs []int64 `json:"device_ids"`
}

// requireGroupRepo writes a 503 and returns false when group storage is
// not configured.
func (s *Server) requireGroupRepo(w http.ResponseWriter) bool {
	if s.groups == nil {
		writeUnavailable(w, "group storage not configured")
		return false
	}
	return true
}

// handleListGroups returns all device groups.
//
// GET /groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}

	groups, err := s.groups.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list device groups", "error", err)
		writeInternalError(w, "failed to list device groups")
		return
	}
	if groups == nil {
		groups = []device.DeviceGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "count": len(groups)})
}

// handleCreateGroup creates a new device group.
//
// POST /groups
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}

	var group device.DeviceGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if group.Name == "" || len(group.Name) > maxGroupNameLength {
		writeBadRequest(w, "name is required and must be at most 128 characters")
		return
	}

	if err := s.groups.Create(r.Context(), &group); err != nil {
		if errors.Is(err, device.ErrGroupExists) {
			writeConflict(w, "a group with this name already exists")
			return
		}
		s.logger.Error("failed to create device group", "error", err)
		writeInternalError(w, "failed to create device group")
		return
	}

	s.logger.Info("device group created", "group_id", group.ID, "name", group.Name)
	writeJSON(w, http.StatusCreated, group)
}

// handleGetGroup returns a single device group by ID.
//
// GET /groups/{id}
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	group, err := s.groups.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "device group not found")
			return
		}
		s.logger.Error("failed to get device group", "error", err, "group_id", id)
		writeInternalError(w, "failed to get device group")
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// handleUpdateGroup patches a device group's name and description.
//
// PATCH /groups/{id}
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	group, err := s.groups.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "device group not found")
			return
		}
		s.logger.Error("failed to get device group", "error", err, "group_id", id)
		writeInternalError(w, "failed to get device group")
		return
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > maxGroupNameLength {
			writeBadRequest(w, "name must be between 1 and 128 characters")
			return
		}
		group.Name = *req.Name
	}
	if req.Description != nil {
		group.Description = req.Description
	}

	if err := s.groups.Update(r.Context(), group); err != nil {
		if errors.Is(err, device.ErrGroupExists) {
			writeConflict(w, "a group with this name already exists")
			return
		}
		s.logger.Error("failed to update device group", "error", err, "group_id", id)
		writeInternalError(w, "failed to update device group")
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// handleDeleteGroup deletes a device group. Member cameras are not
// affected; only the grouping is removed.
//
// DELETE /groups/{id}
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.groups.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "device group not found")
			return
		}
		s.logger.Error("failed to delete device group", "error", err, "group_id", id)
		writeInternalError(w, "failed to delete device group")
		return
	}

	s.logger.Info("device group deleted", "group_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetGroupMembers returns the cameras in a group.
//
// GET /groups/{id}/devices
func (s *Server) handleGetGroupMembers(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	members, err := s.groups.GetMembers(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "device group not found")
			return
		}
		s.logger.Error("failed to get group members", "error", err, "group_id", id)
		writeInternalError(w, "failed to get group members")
		return
	}
	if members == nil {
		members = []device.GroupMember{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members, "count": len(members)})
}

// handleSetGroupMembers replaces a group's membership with the given
// camera IDs. Unknown camera IDs are rejected before anything changes.
//
// PUT /groups/{id}/devices
func (s *Server) handleSetGroupMembers(w http.ResponseWriter, r *http.Request) {
	if !s.requireGroupRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	var req setGroupMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	for _, deviceID := range req.DeviceIDs {
		if _, err := s.devices.GetByID(r.Context(), deviceID); err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				writeBadRequest(w, "unknown device in member list")
				return
			}
			s.logger.Error("failed to verify group member", "error", err, "device_id", deviceID)
			writeInternalError(w, "failed to set group members")
			return
		}
	}

	if err := s.groups.SetMembers(r.Context(), id, req.DeviceIDs); err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "device group not found")
			return
		}
		s.logger.Error("failed to set group members", "error", err, "group_id", id)
		writeInternalError(w, "failed to set group members")
		return
	}

	s.logger.Info("group membership updated", "group_id", id, "members", len(req.DeviceIDs))
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": id,
		"count":    len(req.DeviceIDs),
	})
}
