package device

import (
	"fmt"
	"strings"
	"time"
)

// Device represents a people-counting camera registered with the system.
// This matches the database schema in migrations/20260310_090000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// StreamURL is the video source the camera instance consumes.
	StreamURL string `json:"stream_url"`

	// Processing lifecycle
	ProcessingState ProcessingState `json:"processing_state"`

	// PendingUpdate is set while a state transition has been dispatched to
	// the instance manager but not yet acknowledged. While set, no other
	// transition may be started for this device.
	PendingUpdate bool       `json:"pending_update"`
	PendingSince  *time.Time `json:"pending_since,omitempty"`

	// ScheduledForDeletion is set once removal has been requested. The
	// record is only deleted after the instance manager confirms the
	// camera instance is gone.
	ScheduledForDeletion bool `json:"scheduled_for_deletion"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProcessingState represents the lifecycle state of a camera's processing
// instance as confirmed by the instance manager.
type ProcessingState string

// ProcessingState constants.
const (
	// StateActive means a camera instance is running and producing counts.
	StateActive ProcessingState = "ACTIVE"

	// StatePaused means a camera instance exists but counting is suspended.
	StatePaused ProcessingState = "PAUSED"

	// StateInactive means no camera instance exists for the device.
	StateInactive ProcessingState = "INACTIVE"
)

// AllProcessingStates returns all valid processing state values.
func AllProcessingStates() []ProcessingState {
	return []ProcessingState{StateActive, StatePaused, StateInactive}
}

// Valid reports whether s is a recognised processing state.
func (s ProcessingState) Valid() bool {
	switch s {
	case StateActive, StatePaused, StateInactive:
		return true
	default:
		return false
	}
}

// ParseProcessingState converts a string to a ProcessingState.
// Matching is case-insensitive.
//
// Returns:
//   - ProcessingState: The parsed state
//   - error: If the string is not a recognised state
func ParseProcessingState(s string) (ProcessingState, error) {
	state := ProcessingState(strings.ToUpper(strings.TrimSpace(s)))
	if !state.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return state, nil
}
