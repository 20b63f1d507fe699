package metric

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/infrastructure/mqtt"
)

// CountMessage is the payload published by a camera instance on its
// count topic. The device ID comes from the topic, not the payload.
// Timestamp is RFC3339; when absent the receive time is used.
type CountMessage struct {
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Reading is a decoded people-count observation.
type Reading struct {
	DeviceID  int64     `json:"device_id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Writer persists count readings. Satisfied by the influxdb client.
type Writer interface {
	WriteCount(deviceID int64, count int, timestamp time.Time)
}

// Subscriber is the inbound side of the broker.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Collector consumes count readings from MQTT and forwards them to
// storage and to live subscribers.
type Collector struct {
	writer    Writer
	topics    mqtt.Topics
	qos       byte
	log       *logging.Logger
	broadcast func(Reading)
}

// NewCollector creates a collector writing to the given store. writer
// may be nil when metrics storage is disabled; readings are still
// broadcast.
func NewCollector(writer Writer, qos byte, log *logging.Logger) *Collector {
	return &Collector{
		writer:    writer,
		qos:       qos,
		log:       log,
		broadcast: func(Reading) {},
	}
}

// SetBroadcast installs a callback invoked for every accepted reading.
// Must be called before Start.
func (c *Collector) SetBroadcast(fn func(Reading)) {
	if fn != nil {
		c.broadcast = fn
	}
}

// Start subscribes to the count topics.
func (c *Collector) Start(broker Subscriber) error {
	if err := broker.Subscribe(c.topics.AllCounts(), c.qos, c.HandleCount); err != nil {
		return fmt.Errorf("subscribing to counts: %w", err)
	}
	return nil
}

// HandleCount processes one count message. Malformed payloads and
// unparseable topics are dropped after logging; a reading that cannot
// be attributed to a device has nowhere to go.
func (c *Collector) HandleCount(topic string, payload []byte) error {
	deviceID, err := mqtt.DeviceIDFromTopic(topic)
	if err != nil {
		c.log.Warn("dropping count with unparseable topic",
			"topic", topic,
			"error", err)
		return nil
	}

	var msg CountMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn("dropping malformed count",
			"topic", topic,
			"error", err)
		return nil
	}
	if msg.Count < 0 {
		c.log.Warn("dropping negative count",
			"device_id", deviceID,
			"count", msg.Count)
		return nil
	}

	ts := time.Now().UTC()
	if msg.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			c.log.Warn("count carries invalid timestamp, using receive time",
				"device_id", deviceID,
				"timestamp", msg.Timestamp)
		} else {
			ts = parsed.UTC()
		}
	}

	if c.writer != nil {
		c.writer.WriteCount(deviceID, msg.Count, ts)
	}
	c.broadcast(Reading{DeviceID: deviceID, Count: msg.Count, Timestamp: ts})

	return nil
}
