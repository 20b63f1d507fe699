package processing

import (
	"context"
	"time"

	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/infrastructure/logging"
)

// Janitor expires transitions the instance manager never acknowledged.
// Without it a lost acknowledgement would leave a device pending
// forever, blocking every later transition on that device.
type Janitor struct {
	svc      *Service
	repo     device.Repository
	timeout  time.Duration
	interval time.Duration
	log      *logging.Logger
}

// NewJanitor creates a janitor. timeout is how long a transition may
// stay pending before it is force-failed; interval is how often
// candidates are checked.
func NewJanitor(svc *Service, repo device.Repository, timeout, interval time.Duration, log *logging.Logger) *Janitor {
	return &Janitor{
		svc:      svc,
		repo:     repo,
		timeout:  timeout,
		interval: interval,
		log:      log,
	}
}

// Run sweeps until the context is cancelled. Call in its own goroutine.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep expires every transition that has been pending longer than the
// timeout.
func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.timeout)

	devices, err := j.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		j.log.Error("janitor sweep failed", "error", err)
		return
	}

	for i := range devices {
		if err := j.svc.ExpirePending(ctx, &devices[i]); err != nil {
			j.log.Error("failed to expire pending transition",
				"device_id", devices[i].ID,
				"error", err)
		}
	}
}
