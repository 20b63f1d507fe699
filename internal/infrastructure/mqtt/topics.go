package mqtt

import (
	"fmt"
	"strconv"
)

// Topic prefixes for the countcam MQTT namespace.
//
// Command topics carry processing instructions to the instance manager,
// ack topics carry its responses, and count topics carry people-count
// readings from running camera instances.
const (
	// TopicPrefix is the base for all countcam topics.
	TopicPrefix = "countcam"

	// TopicPrefixCommand is the base for instance manager command topics.
	TopicPrefixCommand = "countcam/command"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "countcam/system"
)

// Topics provides builders for countcam MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.CommandController(42)
//	// Returns: "countcam/command/controller/42"
type Topics struct{}

// CommandController returns the topic for start commands to the instance
// manager's controller queue. Starting a camera instance allocates resources,
// so it is routed separately from the cheaper lifecycle commands.
//
// Example: countcam/command/controller/42
func (Topics) CommandController(deviceID int64) string {
	return fmt.Sprintf("%s/controller/%s", TopicPrefixCommand, strconv.FormatInt(deviceID, 10))
}

// CommandGeneral returns the topic for stop, pause, and remove commands
// to the instance manager's general queue.
//
// Example: countcam/command/general/42
func (Topics) CommandGeneral(deviceID int64) string {
	return fmt.Sprintf("%s/general/%s", TopicPrefixCommand, strconv.FormatInt(deviceID, 10))
}

// Ack returns the topic for action acknowledgements from the instance
// manager for a specific device.
//
// Example: countcam/ack/42
func (Topics) Ack(deviceID int64) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, strconv.FormatInt(deviceID, 10))
}

// Scheduler returns the topic for batch completion notifications from the
// instance manager's scheduler.
//
// Example: countcam/scheduler
func (Topics) Scheduler() string {
	return fmt.Sprintf("%s/scheduler", TopicPrefix)
}

// Count returns the topic for people-count readings from a running
// camera instance.
//
// Example: countcam/count/42
func (Topics) Count(deviceID int64) string {
	return fmt.Sprintf("%s/count/%s", TopicPrefix, strconv.FormatInt(deviceID, 10))
}

// SystemStatus returns the system status topic used for online/offline
// announcements and the LWT.
//
// Example: countcam/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllAcks returns a pattern matching acknowledgements for every device.
//
// Pattern: countcam/ack/+
func (Topics) AllAcks() string {
	return fmt.Sprintf("%s/ack/+", TopicPrefix)
}

// AllCounts returns a pattern matching count readings from every device.
//
// Pattern: countcam/count/+
func (Topics) AllCounts() string {
	return fmt.Sprintf("%s/count/+", TopicPrefix)
}

// AllTopics returns a pattern matching all countcam topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: countcam/#
func (Topics) AllTopics() string {
	return "countcam/#"
}

// DeviceIDFromTopic extracts the trailing device ID segment from a topic
// such as countcam/ack/42 or countcam/count/42.
//
// Returns:
//   - int64: The parsed device ID
//   - error: If the topic has no parseable trailing ID
func DeviceIDFromTopic(topic string) (int64, error) {
	idx := -1
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(topic)-1 {
		return 0, fmt.Errorf("topic %q has no device ID segment", topic)
	}

	id, err := strconv.ParseInt(topic[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("topic %q has non-numeric device ID: %w", topic, err)
	}
	return id, nil
}
