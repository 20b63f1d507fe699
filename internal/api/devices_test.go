package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/countcam/countcam-core/internal/device"
)

func devicePath(id int64) string {
	return "/api/v1/devices/" + strconv.FormatInt(id, 10)
}

func TestCreateDevice(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	t.Run("valid", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/devices/", token, map[string]any{
			"name":       "entrance-north",
			"stream_url": "rtsp://cam1.local/stream",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var dev device.Device
		decode(t, rec, &dev)
		if dev.ID == 0 {
			t.Error("expected an assigned ID")
		}
		if dev.ProcessingState != device.StateInactive {
			t.Errorf("new devices must start INACTIVE, got %s", dev.ProcessingState)
		}
	})

	t.Run("missing stream url", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/devices/", token, map[string]any{
			"name": "broken",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/devices/", token, "not an object")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)
	env.seedDevice(t, "cam-a", device.StateActive)
	env.seedDevice(t, "cam-b", device.StateInactive)

	t.Run("all", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/devices/", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Devices []device.Device `json:"devices"`
			Count   int             `json:"count"`
		}
		decode(t, rec, &resp)
		if resp.Count != 2 {
			t.Errorf("expected 2 devices, got %d", resp.Count)
		}
	})

	t.Run("filtered by state", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/devices/?state=active", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Devices []device.Device `json:"devices"`
		}
		decode(t, rec, &resp)
		if len(resp.Devices) != 1 || resp.Devices[0].Name != "cam-a" {
			t.Errorf("expected only cam-a, got %+v", resp.Devices)
		}
	})

	t.Run("unknown state filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/devices/?state=RUNNING", token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)
	dev := env.seedDevice(t, "cam-a", device.StateActive)

	rec := env.do(t, http.MethodGet, devicePath(dev.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got device.Device
	decode(t, rec, &got)
	if got.ID != dev.ID || got.Name != "cam-a" {
		t.Errorf("unexpected device: %+v", got)
	}

	t.Run("not found", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, devicePath(9999), token, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/devices/abc", token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestUpdateDevice(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)
	dev := env.seedDevice(t, "cam-a", device.StateActive)

	rec := env.do(t, http.MethodPatch, devicePath(dev.ID), token, map[string]any{
		"name":        "cam-renamed",
		"description": "east entrance",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got device.Device
	decode(t, rec, &got)
	if got.Name != "cam-renamed" {
		t.Errorf("expected renamed device, got %q", got.Name)
	}
	if got.Description == nil || *got.Description != "east entrance" {
		t.Errorf("expected description to be set, got %v", got.Description)
	}
	// Metadata updates must not touch the processing state.
	if got.ProcessingState != device.StateActive {
		t.Errorf("expected state preserved, got %s", got.ProcessingState)
	}

	t.Run("invalid stream url", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, devicePath(dev.ID), token, map[string]any{
			"stream_url": "ftp://nope",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestDeleteDevice(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	t.Run("schedules removal", func(t *testing.T) {
		dev := env.seedDevice(t, "doomed", device.StateActive)

		rec := env.do(t, http.MethodDelete, devicePath(dev.ID), token, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		// The row survives until the instance manager confirms.
		stored, err := env.devices.GetByID(context.Background(), dev.ID)
		if err != nil {
			t.Fatalf("device should still exist: %v", err)
		}
		if !stored.ScheduledForDeletion || !stored.PendingUpdate {
			t.Errorf("expected deletion claim, got %+v", stored)
		}

		msg := env.broker.last()
		if !strings.Contains(msg.topic, "general") {
			t.Errorf("REMOVE must go to the general topic, got %q", msg.topic)
		}
		var cmd struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(msg.payload, &cmd); err != nil {
			t.Fatalf("failed to decode command: %v", err)
		}
		if cmd.Action != "REMOVE" {
			t.Errorf("expected REMOVE command, got %q", cmd.Action)
		}
	})

	t.Run("conflict while pending", func(t *testing.T) {
		dev := env.seedDevice(t, "busy", device.StateInactive)
		rec := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "ACTIVE"})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("setup transition failed: %d", rec.Code)
		}

		rec = env.do(t, http.MethodDelete, devicePath(dev.ID), token, nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, devicePath(4242), token, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestSetProcessingState(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	t.Run("accepted", func(t *testing.T) {
		dev := env.seedDevice(t, "cam-a", device.StateInactive)

		rec := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "ACTIVE"})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		stored, err := env.devices.GetByID(context.Background(), dev.ID)
		if err != nil {
			t.Fatalf("failed to reload device: %v", err)
		}
		if !stored.PendingUpdate {
			t.Error("expected device marked pending")
		}
		// State only changes once the instance manager acknowledges.
		if stored.ProcessingState != device.StateInactive {
			t.Errorf("state must not change before confirmation, got %s", stored.ProcessingState)
		}

		msg := env.broker.last()
		if !strings.Contains(msg.topic, "controller") {
			t.Errorf("START must go to the controller topic, got %q", msg.topic)
		}
	})

	t.Run("conflict on second transition", func(t *testing.T) {
		dev := env.seedDevice(t, "cam-b", device.StateInactive)

		first := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "ACTIVE"})
		if first.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", first.Code)
		}
		second := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "PAUSED"})
		if second.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", second.Code)
		}
	})

	t.Run("invalid transition", func(t *testing.T) {
		dev := env.seedDevice(t, "cam-c", device.StateInactive)

		rec := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "PAUSED"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for INACTIVE to PAUSED, got %d", rec.Code)
		}
	})

	t.Run("unknown state", func(t *testing.T) {
		dev := env.seedDevice(t, "cam-d", device.StateInactive)

		rec := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "RUNNING"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, devicePath(7777)+"/processing-state", token, map[string]string{"state": "ACTIVE"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestGetProcessingState(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)
	dev := env.seedDevice(t, "cam-a", device.StatePaused)

	rec := env.do(t, http.MethodGet, devicePath(dev.ID)+"/processing-state", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		ProcessingState string `json:"processing_state"`
		PendingUpdate   bool   `json:"pending_update"`
	}
	decode(t, rec, &resp)
	if resp.ProcessingState != "PAUSED" {
		t.Errorf("expected PAUSED, got %q", resp.ProcessingState)
	}
	if resp.PendingUpdate {
		t.Error("expected no pending update")
	}
}

func TestStreamProcessingState(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	t.Run("settled device emits one event", func(t *testing.T) {
		dev := env.seedDevice(t, "cam-a", device.StateActive)

		rec := env.do(t, http.MethodGet, devicePath(dev.ID)+"/processing-state/stream", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Errorf("expected SSE content type, got %q", ct)
		}

		body := rec.Body.String()
		if !strings.Contains(body, "event: state") {
			t.Errorf("expected a state event, got %q", body)
		}
		if !strings.Contains(body, `"ACTIVE"`) {
			t.Errorf("expected confirmed ACTIVE state, got %q", body)
		}
	})

	t.Run("pending device settles after ack", func(t *testing.T) {
		dev := env.seedDevice(t, "cam-b", device.StateInactive)
		if rec := env.do(t, http.MethodPut, devicePath(dev.ID)+"/processing-state", token, map[string]string{"state": "ACTIVE"}); rec.Code != http.StatusAccepted {
			t.Fatalf("setup transition failed: %d", rec.Code)
		}

		// Complete the handshake concurrently so the stream observes the
		// PENDING phase and then the confirmation.
		done := make(chan error, 1)
		go func() {
			done <- env.server.lifecycle.CompleteUpdate(context.Background(), dev.ID, "START", 2000)
		}()

		rec := env.do(t, http.MethodGet, devicePath(dev.ID)+"/processing-state/stream", token, nil)
		if err := <-done; err != nil && !errors.Is(err, device.ErrNotPending) {
			t.Fatalf("completion failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := rec.Body.String()
		if !strings.Contains(body, `"ACTIVE"`) {
			t.Errorf("expected final ACTIVE event, got %q", body)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, devicePath(31337)+"/processing-state/stream", token, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}
