package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidState is returned when a processing state value is not recognised.
	ErrInvalidState = errors.New("device: invalid processing state")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidStreamURL is returned when a stream URL is empty or malformed.
	ErrInvalidStreamURL = errors.New("device: invalid stream url")

	// ErrUpdatePending is returned when a transition is requested while a
	// previous transition for the same device is still awaiting
	// acknowledgement from the instance manager.
	ErrUpdatePending = errors.New("device: update already pending")

	// ErrNotPending is returned when completing a transition for a device
	// that has no pending update. Duplicate or stale acknowledgements land
	// here.
	ErrNotPending = errors.New("device: no update pending")

	// ErrScheduledForDeletion is returned when a transition is requested
	// for a device whose removal is already in progress.
	ErrScheduledForDeletion = errors.New("device: scheduled for deletion")
)
