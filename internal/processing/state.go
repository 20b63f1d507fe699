package processing

import (
	"fmt"
	"strings"

	"github.com/countcam/countcam-core/internal/device"
)

// Action is the command vocabulary sent to the instance manager. It is
// distinct from the processing states tracked locally: actions describe
// what the instance manager should do, states describe the confirmed
// outcome.
type Action string

// Known instance manager actions.
const (
	ActionStart  Action = "START"
	ActionStop   Action = "STOP"
	ActionPause  Action = "PAUSE"
	ActionRemove Action = "REMOVE"
)

// actionStates is the single authoritative action-to-state mapping.
// The state-to-action direction is derived from it in actionFor, so the
// two can never drift apart.
var actionStates = map[Action]device.ProcessingState{
	ActionStart:  device.StateActive,
	ActionStop:   device.StateInactive,
	ActionPause:  device.StatePaused,
	ActionRemove: device.StateInactive,
}

// ParseAction converts a wire-level action string into an Action.
// Matching is case-insensitive. Returns ErrInvalidAction for anything
// outside the known vocabulary.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := actionStates[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// State returns the processing state the instance manager reports after
// acting on the action. REMOVE shares INACTIVE with STOP because a
// removed instance is no longer running.
func (a Action) State() device.ProcessingState {
	return actionStates[a]
}

// actionFor returns the action that drives a device towards the target
// state. Stopping and pausing both apply from any running state, but a
// camera with no instance cannot be paused.
func actionFor(target device.ProcessingState) Action {
	switch target {
	case device.StateActive:
		return ActionStart
	case device.StatePaused:
		return ActionPause
	default:
		return ActionStop
	}
}

// ValidTransition reports whether a device may move between two
// processing states. Self-transitions are excluded; callers treat them
// as no-ops before consulting the table. The only structurally
// disallowed pair is INACTIVE to PAUSED, since there is no running
// instance to pause.
func ValidTransition(from, to device.ProcessingState) bool {
	if from == to {
		return false
	}
	if from == device.StateInactive && to == device.StatePaused {
		return false
	}
	return true
}

// ActionFor validates a transition and returns the action to send.
// Returns ErrInvalidTransition for disallowed pairs.
func ActionFor(from, to device.ProcessingState) (Action, error) {
	if !ValidTransition(from, to) {
		return "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return actionFor(to), nil
}
