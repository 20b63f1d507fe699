package processing

import "errors"

var (
	// ErrInvalidAction is returned when an inbound message carries an
	// action outside the known vocabulary.
	ErrInvalidAction = errors.New("processing: unrecognised action")

	// ErrInvalidTransition is returned for structurally disallowed
	// state transitions.
	ErrInvalidTransition = errors.New("processing: invalid state transition")

	// ErrProtocol is returned when an acknowledgement carries a response
	// code outside the known families.
	ErrProtocol = errors.New("processing: unexpected response code")
)
