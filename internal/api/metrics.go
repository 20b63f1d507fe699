package api

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/infrastructure/influxdb"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics contains camera catalogue statistics.
type DeviceMetrics struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state"`
	Pending int            `json:"pending"`
}

// handleSystemMetrics returns runtime, connection, and catalogue statistics.
//
// GET /metrics
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	const bytesPerMB = 1024 * 1024

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Warn("device stats unavailable for metrics", "error", err)
	} else {
		metrics.Devices.Total = len(devices)
		metrics.Devices.ByState = make(map[string]int)
		for _, dev := range devices {
			metrics.Devices.ByState[string(dev.ProcessingState)]++
			if dev.PendingUpdate {
				metrics.Devices.Pending++
			}
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// defaultCountWindow is how far back count queries reach when no start
// parameter is given.
const defaultCountWindow = 24 * time.Hour

// countRange parses the optional start and end query parameters
// (RFC 3339). Defaults to the last 24 hours ending now.
func countRange(r *http.Request) (start, end time.Time, err error) {
	end = time.Now().UTC()
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, errors.New("end must be an RFC 3339 timestamp")
		}
	}

	start = end.Add(-defaultCountWindow)
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, errors.New("start must be an RFC 3339 timestamp")
		}
	}

	if !start.Before(end) {
		return start, end, errors.New("start must be before end")
	}
	return start, end, nil
}

// handleDeviceCounts returns the historical people-count series for one
// camera.
//
// GET /devices/{id}/counts?start=...&end=...
func (s *Server) handleDeviceCounts(w http.ResponseWriter, r *http.Request) {
	if s.counts == nil {
		writeUnavailable(w, "count metrics storage not configured")
		return
	}

	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "device ID must be an integer")
		return
	}

	if _, err := s.devices.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "error", err, "device_id", id)
		writeInternalError(w, "failed to get device")
		return
	}

	start, end, err := countRange(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	points, err := s.counts.QueryCounts(r.Context(), id, start, end)
	if err != nil {
		s.logger.Error("count query failed", "error", err, "device_id", id)
		writeInternalError(w, "failed to query counts")
		return
	}
	if points == nil {
		points = []influxdb.CountPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"start":     start.Format(time.RFC3339),
		"end":       end.Format(time.RFC3339),
		"points":    points,
		"count":     len(points),
	})
}

// groupCountSeries is one camera's series within a group count response.
type groupCountSeries struct {
	DeviceID int64                 `json:"device_id"`
	Points   []influxdb.CountPoint `json:"points"`
}

// handleGroupCounts returns count series for every camera in a group.
//
// GET /groups/{id}/counts?start=...&end=...
func (s *Server) handleGroupCounts(w http.ResponseWriter, r *http.Request) {
	if s.counts == nil {
		writeUnavailable(w, "count metrics storage not configured")
		return
	}
	if !s.requireGroupRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	deviceIDs, err := s.groups.GetMemberDeviceIDs(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "device group not found")
			return
		}
		s.logger.Error("failed to get group members", "error", err, "group_id", id)
		writeInternalError(w, "failed to get group members")
		return
	}

	start, end, err := countRange(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	series := make([]groupCountSeries, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		points, err := s.counts.QueryCounts(r.Context(), deviceID, start, end)
		if err != nil {
			s.logger.Error("count query failed", "error", err, "device_id", deviceID)
			writeInternalError(w, "failed to query counts")
			return
		}
		if points == nil {
			points = []influxdb.CountPoint{}
		}
		series = append(series, groupCountSeries{DeviceID: deviceID, Points: points})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": id,
		"start":    start.Format(time.RFC3339),
		"end":      end.Format(time.RFC3339),
		"series":   series,
	})
}
