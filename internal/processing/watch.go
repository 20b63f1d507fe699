package processing

import (
	"context"
	"time"
)

// WatchState is a display state emitted to watchers. It extends the
// persisted processing states with PENDING, which means a transition is
// in flight and the confirmed state is not yet known.
type WatchState string

// WatchPending is emitted while the device has a transition pending.
const WatchPending WatchState = "PENDING"

// WatchEvent is one emission of a state watch. Err is set at most once,
// on the final event, when the device disappears mid watch.
type WatchEvent struct {
	State WatchState
	Err   error
}

// WatchState produces a finite stream of state snapshots for one
// device, polling on the given interval. While a transition is pending
// it emits PENDING; once the device settles it emits the confirmed
// state and closes the channel. Cancelling the context stops the
// polling goroutine promptly, so a disconnecting subscriber never
// leaves an orphaned poller behind.
//
// A device deleted mid watch produces a final event with Err set.
func (s *Service) WatchState(ctx context.Context, deviceID int64, interval time.Duration) <-chan WatchEvent {
	events := make(chan WatchEvent)

	go func() {
		defer close(events)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			dev, err := s.repo.GetByID(ctx, deviceID)
			if err != nil {
				s.emit(ctx, events, WatchEvent{Err: err})
				return
			}

			if !dev.PendingUpdate {
				s.emit(ctx, events, WatchEvent{State: WatchState(dev.ProcessingState)})
				return
			}

			if !s.emit(ctx, events, WatchEvent{State: WatchPending}) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return events
}

// emit delivers an event unless the watcher has gone away. Returns
// false when the context was cancelled before the send completed.
func (s *Service) emit(ctx context.Context, events chan<- WatchEvent, ev WatchEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
