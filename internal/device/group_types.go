package device

import (
	"time"

	"github.com/google/uuid"
)

// DeviceGroup is a named collection of cameras, typically one per site or
// zone (entrance, food hall, car park).
type DeviceGroup struct { //nolint:revive // device.DeviceGroup is clearer than device.Group in calling code
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember represents a camera's membership in a group.
type GroupMember struct {
	GroupID  string    `json:"group_id"`
	DeviceID int64     `json:"device_id"`
	AddedAt  time.Time `json:"added_at"`
}

// GenerateGroupID creates a new unique identifier for a device group.
func GenerateGroupID() string {
	return uuid.New().String()
}
