package device

import (
	"fmt"
	"net/url"
	"strings"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxStreamURLLength   = 2048
)

// ValidateDevice performs validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if d.Description != nil && len(*d.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDevice, maxDescriptionLength)
	}

	if err := ValidateStreamURL(d.StreamURL); err != nil {
		return err
	}

	if d.ProcessingState != "" && !d.ProcessingState.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, d.ProcessingState)
	}

	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateStreamURL checks if a stream URL is usable by a camera instance.
// Accepted schemes are rtsp, rtmp, http, and https.
func ValidateStreamURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: stream url cannot be empty", ErrInvalidStreamURL)
	}
	if len(raw) > maxStreamURLLength {
		return fmt.Errorf("%w: stream url exceeds %d characters", ErrInvalidStreamURL, maxStreamURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStreamURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "rtsp", "rtmp", "http", "https":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidStreamURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: stream url requires a host", ErrInvalidStreamURL)
	}

	return nil
}
