package processing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/infrastructure/mqtt"
)

// Subscriber is the inbound side of the broker. Satisfied by the
// infrastructure mqtt client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Dispatcher routes inbound acknowledgements and scheduler
// notifications to the service's completion paths. Handlers run on
// broker-driven goroutines, fully asynchronous to the HTTP layer.
//
// Errors from completion are logged and the message is considered
// handled. Re-queueing is pointless here: a malformed message stays
// malformed, and a rejected duplicate stays a duplicate. The affected
// device simply remains pending until a corrected message arrives or
// the janitor expires the claim.
type Dispatcher struct {
	svc    *Service
	topics mqtt.Topics
	qos    byte
	log    *logging.Logger
}

// NewDispatcher creates a dispatcher for the given service.
func NewDispatcher(svc *Service, qos byte, log *logging.Logger) *Dispatcher {
	return &Dispatcher{svc: svc, qos: qos, log: log}
}

// Start subscribes to the acknowledgement and scheduler topics.
func (d *Dispatcher) Start(broker Subscriber) error {
	if err := broker.Subscribe(d.topics.AllAcks(), d.qos, d.HandleAck); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	if err := broker.Subscribe(d.topics.Scheduler(), d.qos, d.HandleScheduler); err != nil {
		return fmt.Errorf("subscribing to scheduler notifications: %w", err)
	}
	return nil
}

// HandleAck processes a single acknowledgement message. Malformed
// payloads and unknown actions are dropped after logging; there is no
// recovery a retry could reach.
func (d *Dispatcher) HandleAck(topic string, payload []byte) error {
	var msg AckMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.log.Warn("dropping malformed ack",
			"topic", topic,
			"error", err)
		return nil
	}

	action, err := ParseAction(msg.Action)
	if err != nil {
		d.log.Warn("dropping ack with unknown action",
			"topic", topic,
			"device_id", msg.DeviceID,
			"action", msg.Action)
		return nil
	}

	ctx := context.Background()

	switch action {
	case ActionStart, ActionStop, ActionPause:
		err = d.svc.CompleteUpdate(ctx, msg.DeviceID, action, msg.Code)
	case ActionRemove:
		err = d.svc.CompleteRemoval(ctx, msg.DeviceID, msg.Code)
	}

	if err != nil {
		return fmt.Errorf("completing %s for device %d: %w", action, msg.DeviceID, err)
	}
	return nil
}

// HandleScheduler processes a batch scheduler notification. Every
// listed device is driven to INACTIVE, bypassing the pending check,
// because the shutdown already happened on the instance manager's side.
func (d *Dispatcher) HandleScheduler(topic string, payload []byte) error {
	var msg SchedulerNotification
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.log.Warn("dropping malformed scheduler notification",
			"topic", topic,
			"error", err)
		return nil
	}

	d.log.Info("scheduler notification received",
		"device_count", len(msg.DeviceIDs),
		"code", msg.Code)
	d.svc.ForceInactive(context.Background(), msg.DeviceIDs)
	return nil
}
