// Package processing owns the device processing-state lifecycle.
//
// A device's processing state only changes through a handshake with the
// instance manager: the service validates the transition, claims the
// device with a durable pending flag, publishes a command, and applies
// the confirmed state when an acknowledgement arrives over MQTT. The
// dispatcher routes inbound acknowledgements and scheduler notifications
// to the right completion path, the watcher exposes the in-flight status
// as a pollable stream, and the janitor force-fails transitions the
// instance manager never acknowledged.
package processing
