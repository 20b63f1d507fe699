package processing

// Wire types exchanged with the instance manager over MQTT. Field names
// follow the instance manager's JSON contract.

// CommandMessage is published to instruct the instance manager to act on
// a device. DeviceStreamURL is only set for START, which is the one
// action that needs to open the camera stream.
type CommandMessage struct {
	Action          Action  `json:"action"`
	DeviceID        int64   `json:"device_id"`
	DeviceStreamURL *string `json:"device_stream_url"`
}

// AckMessage is the instance manager's response to a previously sent
// command.
type AckMessage struct {
	DeviceID int64  `json:"device_id"`
	Action   string `json:"action"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}

// SchedulerNotification is a batch message from the instance manager's
// scheduler reporting devices it shut down on its own, for example at
// the end of an operating window.
type SchedulerNotification struct {
	DeviceIDs []int64 `json:"device_ids"`
	Action    string  `json:"action"`
	Code      int     `json:"code"`
	Message   string  `json:"message"`
}

// CodeNotFound is the instance manager's "device unknown" response. It
// sits inside the error family but is handled separately: a device the
// instance manager has no record of is treated as already stopped.
const CodeNotFound = 4004

// successCode reports whether a response code is in the success family.
func successCode(code int) bool {
	return code/1000 == 2
}

// errorCode reports whether a response code is in the error family.
func errorCode(code int) bool {
	return code/1000 == 4
}
