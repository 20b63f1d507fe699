// Package device provides the device catalogue for countcam core.
//
// A device represents a people-counting camera registered with the system.
// The package owns the persistence layer for devices and device groups and
// the validation rules applied before writes.
//
// # Processing State
//
// Each device carries a processing state describing what its camera
// instance is doing:
//
//   - ACTIVE: the instance is running and producing counts
//   - PAUSED: the instance is running but counting is suspended
//   - INACTIVE: no instance is running for the device
//
// State changes are negotiated with the instance manager over MQTT, so a
// device also carries a pending_update flag while a request is in flight.
// The repository enforces mutual exclusion with conditional updates:
// MarkPending only succeeds when no update is pending and the device is not
// scheduled for deletion, and CompleteUpdate only succeeds while the flag
// is set. Callers never read-then-write the flag themselves.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//
//	dev := &device.Device{
//	    Name:      "Entrance North",
//	    StreamURL: "rtsp://cam-12.local/stream",
//	}
//	if err := repo.Create(ctx, dev); err != nil {
//	    return err
//	}
//
//	// Claim the device for a state change
//	if err := repo.MarkPending(ctx, dev.ID, time.Now().UTC()); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use; SQLite access
// is serialised through the shared *sql.DB connection pool.
package device
