package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/infrastructure/mqtt"
)

// Broker is the outbound command channel. Satisfied by the
// infrastructure mqtt client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Notifier receives state change events for fan-out to connected
// clients. pending is true while a transition is in flight.
type Notifier func(deviceID int64, state device.ProcessingState, pending bool)

// Service drives the processing-state handshake with the instance
// manager. It is the only writer of the pending and state fields on
// devices; the HTTP layer and dispatcher both go through it.
type Service struct {
	repo   device.Repository
	broker Broker
	topics mqtt.Topics
	qos    byte
	log    *logging.Logger

	notifyMu sync.RWMutex
	notifyFn Notifier
}

// NewService creates a processing service.
func NewService(repo device.Repository, broker Broker, qos byte, log *logging.Logger) *Service {
	return &Service{
		repo:     repo,
		broker:   broker,
		qos:      qos,
		log:      log,
		notifyFn: func(int64, device.ProcessingState, bool) {},
	}
}

// SetNotifier installs a callback invoked on every state change. Safe
// to call while the dispatcher is already delivering acknowledgements;
// events arriving before installation go to a no-op notifier.
func (s *Service) SetNotifier(fn Notifier) {
	if fn == nil {
		return
	}
	s.notifyMu.Lock()
	s.notifyFn = fn
	s.notifyMu.Unlock()
}

// notify fans a state change out to the installed notifier.
func (s *Service) notify(deviceID int64, state device.ProcessingState, pending bool) {
	s.notifyMu.RLock()
	fn := s.notifyFn
	s.notifyMu.RUnlock()
	fn(deviceID, state, pending)
}

// StartUpdate initiates a processing-state transition.
//
// The target is parsed, validated against the transition table, the
// device is claimed with the durable pending flag, and only then is the
// command published. Persisting the claim before publishing means a
// crash between the two steps leaves the device pending, never the
// broker holding a command the store knows nothing about. If publishing
// fails the claim is rolled back.
//
// A target equal to the device's current state is a no-op.
func (s *Service) StartUpdate(ctx context.Context, deviceID int64, targetName string) error {
	target, err := device.ParseProcessingState(targetName)
	if err != nil {
		return err
	}

	dev, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}

	// Conflicts are checked before the no-op and transition rules: a
	// device with an in-flight transition rejects every request, even
	// one naming its current state.
	if dev.PendingUpdate {
		return device.ErrUpdatePending
	}
	if dev.ScheduledForDeletion {
		return device.ErrScheduledForDeletion
	}

	if dev.ProcessingState == target {
		return nil
	}

	action, err := ActionFor(dev.ProcessingState, target)
	if err != nil {
		return err
	}

	if err := s.repo.MarkPending(ctx, deviceID, time.Now().UTC()); err != nil {
		return err
	}

	if err := s.publishCommand(action, dev); err != nil {
		if clearErr := s.repo.ClearPending(ctx, deviceID); clearErr != nil {
			s.log.Error("failed to roll back pending claim",
				"device_id", deviceID,
				"error", clearErr)
		}
		return fmt.Errorf("publishing %s command: %w", action, err)
	}

	s.log.Info("processing transition initiated",
		"device_id", deviceID,
		"from", dev.ProcessingState,
		"to", target,
		"action", action)
	s.notify(deviceID, dev.ProcessingState, true)

	return nil
}

// ScheduleDelete initiates device removal. The removal handshake reuses
// the pending flag, so a device mid transition cannot be deleted and a
// device being deleted cannot start a transition. The row is only
// removed when the instance manager acknowledges the REMOVE command.
func (s *Service) ScheduleDelete(ctx context.Context, deviceID int64) error {
	dev, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}

	if err := s.repo.MarkDeletion(ctx, deviceID, time.Now().UTC()); err != nil {
		return err
	}

	if err := s.publishCommand(ActionRemove, dev); err != nil {
		if clearErr := s.repo.ClearDeletion(ctx, deviceID); clearErr != nil {
			s.log.Error("failed to roll back deletion claim",
				"device_id", deviceID,
				"error", clearErr)
		}
		return fmt.Errorf("publishing REMOVE command: %w", err)
	}

	s.log.Info("device removal initiated", "device_id", deviceID)
	s.notify(deviceID, dev.ProcessingState, true)

	return nil
}

// CompleteUpdate applies the outcome of a START, STOP, or PAUSE
// acknowledgement. The repository's conditional update rejects
// completions for devices with nothing pending, so duplicate
// acknowledgements from the broker's at-least-once delivery are
// rejected rather than double-applied.
func (s *Service) CompleteUpdate(ctx context.Context, deviceID int64, action Action, code int) error {
	newState, err := resolveState(action, code)
	if err != nil {
		return err
	}

	if err := s.repo.CompleteUpdate(ctx, deviceID, newState); err != nil {
		return err
	}

	dev, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}

	s.log.Info("processing transition completed",
		"device_id", deviceID,
		"action", action,
		"code", code,
		"state", dev.ProcessingState)
	s.notify(deviceID, dev.ProcessingState, false)

	return nil
}

// CompleteRemoval applies the outcome of a REMOVE acknowledgement.
// Success deletes the device row. A not-found response also deletes it,
// since the instance manager has no record to tear down. Any other
// error response rolls the deletion claim back and keeps the device.
func (s *Service) CompleteRemoval(ctx context.Context, deviceID int64, code int) error {
	dev, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.ScheduledForDeletion {
		return device.ErrNotPending
	}

	switch {
	case successCode(code) || code == CodeNotFound:
		if err := s.repo.Delete(ctx, deviceID); err != nil {
			return err
		}
		s.log.Info("device removed", "device_id", deviceID, "code", code)
		return nil
	case errorCode(code):
		if err := s.repo.ClearDeletion(ctx, deviceID); err != nil {
			return err
		}
		s.log.Warn("device removal rejected by instance manager",
			"device_id", deviceID,
			"code", code)
		s.notify(deviceID, dev.ProcessingState, false)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrProtocol, code)
	}
}

// ForceInactive drives a batch of devices to INACTIVE regardless of
// their pending flags. Used for scheduler notifications, which report
// shutdowns that already happened. Unknown device IDs are logged and
// skipped so one stale entry cannot block the rest of the batch.
func (s *Service) ForceInactive(ctx context.Context, deviceIDs []int64) {
	for _, id := range deviceIDs {
		if err := s.repo.ForceState(ctx, id, device.StateInactive); err != nil {
			s.log.Warn("failed to force device inactive",
				"device_id", id,
				"error", err)
			continue
		}
		s.notify(id, device.StateInactive, false)
	}
}

// ExpirePending force-fails a transition the instance manager never
// acknowledged. The state is left unchanged, matching an error-family
// completion. Removal claims are rolled back entirely.
func (s *Service) ExpirePending(ctx context.Context, dev *device.Device) error {
	if dev.ScheduledForDeletion {
		if err := s.repo.ClearDeletion(ctx, dev.ID); err != nil {
			return err
		}
	} else {
		if err := s.repo.ClearPending(ctx, dev.ID); err != nil {
			return err
		}
	}

	s.log.Warn("pending transition expired",
		"device_id", dev.ID,
		"pending_since", dev.PendingSince,
		"state", dev.ProcessingState)
	s.notify(dev.ID, dev.ProcessingState, false)

	return nil
}

// publishCommand serialises and sends a command for a device. Start
// commands carry the stream URL and go to the controller queue; all
// other actions go to the general queue.
func (s *Service) publishCommand(action Action, dev *device.Device) error {
	msg := CommandMessage{
		Action:   action,
		DeviceID: dev.ID,
	}
	if action == ActionStart {
		msg.DeviceStreamURL = &dev.StreamURL
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	topic := s.topics.CommandGeneral(dev.ID)
	if action == ActionStart {
		topic = s.topics.CommandController(dev.ID)
	}

	return s.broker.Publish(topic, payload, s.qos, false)
}

// resolveState maps an acknowledgement's code family to the state to
// persist. nil means clear the pending flag without touching the state,
// which is how a failed transition reverts to the last confirmed state.
func resolveState(action Action, code int) (*device.ProcessingState, error) {
	switch {
	case successCode(code):
		state := action.State()
		return &state, nil
	case code == CodeNotFound:
		// The instance manager has no record of the device, so
		// whatever we asked for, nothing is running.
		state := device.StateInactive
		return &state, nil
	case errorCode(code):
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrProtocol, code)
	}
}
