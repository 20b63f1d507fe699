package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByState retrieves all devices in a specific processing state.
	ListByState(ctx context.Context, state ProcessingState) ([]Device, error)

	// ListPendingBefore retrieves all devices whose pending transition was
	// started before the given cutoff. Used by the janitor to find
	// transitions the instance manager never acknowledged.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Device, error)

	// Create inserts a new device and assigns its ID.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device's metadata (name, description,
	// stream URL). Processing state fields are managed by the dedicated
	// methods below.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device row by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id int64) error

	// MarkPending atomically claims the device for a state transition.
	// The update only succeeds if no transition is pending and the device
	// is not scheduled for deletion, making pending_update the per-device
	// mutual exclusion for the instance manager handshake.
	//
	// Returns ErrUpdatePending, ErrScheduledForDeletion, or
	// ErrDeviceNotFound on failure.
	MarkPending(ctx context.Context, id int64, since time.Time) error

	// ClearPending releases the pending flag without changing state.
	// Used to roll back when publishing the command fails, and by the
	// janitor when an acknowledgement never arrives.
	ClearPending(ctx context.Context, id int64) error

	// CompleteUpdate atomically clears the pending flag and, when newState
	// is non-nil, records the confirmed processing state. The update only
	// succeeds if a transition is actually pending, so duplicate
	// acknowledgements are rejected with ErrNotPending.
	CompleteUpdate(ctx context.Context, id int64, newState *ProcessingState) error

	// ForceState records a processing state and clears the pending flag
	// unconditionally. Used for scheduler notifications, which apply to
	// devices regardless of whether a transition is pending.
	ForceState(ctx context.Context, id int64, state ProcessingState) error

	// MarkDeletion atomically schedules the device for removal. The
	// removal handshake reuses the pending flag, so this fails with
	// ErrUpdatePending while another transition is in flight.
	MarkDeletion(ctx context.Context, id int64, since time.Time) error

	// ClearDeletion rolls back a scheduled removal, releasing both the
	// deletion and pending flags.
	ClearDeletion(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, description, stream_url, processing_state,
		pending_update, pending_since, scheduled_for_deletion, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// ListByState retrieves all devices in a specific processing state.
func (r *SQLiteRepository) ListByState(ctx context.Context, state ProcessingState) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE processing_state = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(state))
}

// ListPendingBefore retrieves all devices with a pending transition older
// than the cutoff.
func (r *SQLiteRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE pending_update = 1 AND pending_since < ?
		ORDER BY pending_since`
	return r.queryDevices(ctx, query, cutoff.UTC().Format(time.RFC3339))
}

// Create inserts a new device and assigns its ID from the inserted row.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	if device.ProcessingState == "" {
		device.ProcessingState = StateInactive
	}

	query := `
		INSERT INTO devices (
			name, description, stream_url, processing_state,
			pending_update, pending_since, scheduled_for_deletion,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		nullableString(device.Description),
		device.StreamURL,
		string(device.ProcessingState),
		boolToInt(device.PendingUpdate),
		nullableTime(device.PendingSince),
		boolToInt(device.ScheduledForDeletion),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted device id: %w", err)
	}
	device.ID = id

	return nil
}

// Update modifies an existing device's metadata.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, description = ?, stream_url = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		nullableString(device.Description),
		device.StreamURL,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete removes a device row by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// MarkPending atomically claims the device for a state transition.
func (r *SQLiteRepository) MarkPending(ctx context.Context, id int64, since time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET pending_update = 1, pending_since = ?, updated_at = ?
		WHERE id = ? AND pending_update = 0 AND scheduled_for_deletion = 0`

	result, err := r.db.ExecContext(ctx, query,
		since.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("marking device pending: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return r.pendingConflict(ctx, id)
	}

	return nil
}

// ClearPending releases the pending flag without changing state.
func (r *SQLiteRepository) ClearPending(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET pending_update = 0, pending_since = NULL, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("clearing pending flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// CompleteUpdate atomically clears the pending flag and optionally records
// the confirmed processing state.
func (r *SQLiteRepository) CompleteUpdate(ctx context.Context, id int64, newState *ProcessingState) error {
	now := time.Now().UTC()

	var stateArg sql.NullString
	if newState != nil {
		stateArg = sql.NullString{String: string(*newState), Valid: true}
	}

	query := `
		UPDATE devices
		SET pending_update = 0,
		    pending_since = NULL,
		    processing_state = COALESCE(?, processing_state),
		    updated_at = ?
		WHERE id = ? AND pending_update = 1`

	result, err := r.db.ExecContext(ctx, query, stateArg, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("completing device update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the device is gone or nothing was pending
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrDeviceNotFound
		}
		return ErrNotPending
	}

	return nil
}

// ForceState records a processing state and clears the pending flag
// unconditionally.
func (r *SQLiteRepository) ForceState(ctx context.Context, id int64, state ProcessingState) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET pending_update = 0,
		    pending_since = NULL,
		    processing_state = ?,
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(state), now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("forcing device state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// MarkDeletion atomically schedules the device for removal.
func (r *SQLiteRepository) MarkDeletion(ctx context.Context, id int64, since time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET scheduled_for_deletion = 1, pending_update = 1, pending_since = ?, updated_at = ?
		WHERE id = ? AND pending_update = 0 AND scheduled_for_deletion = 0`

	result, err := r.db.ExecContext(ctx, query,
		since.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("marking device for deletion: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return r.pendingConflict(ctx, id)
	}

	return nil
}

// ClearDeletion rolls back a scheduled removal.
func (r *SQLiteRepository) ClearDeletion(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET scheduled_for_deletion = 0, pending_update = 0, pending_since = NULL, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("clearing deletion flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// pendingConflict disambiguates a failed conditional update on the pending
// and deletion flags.
func (r *SQLiteRepository) pendingConflict(ctx context.Context, id int64) error {
	device, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if device.ScheduledForDeletion {
		return ErrScheduledForDeletion
	}
	if device.PendingUpdate {
		return ErrUpdatePending
	}
	// The row changed between the two queries. Report the conservative
	// answer so the caller retries.
	return ErrUpdatePending
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// exists checks if a device with the given ID exists.
func (r *SQLiteRepository) exists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking device exists: %w", err)
	}
	return count > 0, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var description, pendingSince sql.NullString
	var pendingUpdate, scheduledForDeletion int
	var processingState string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&description,
		&d.StreamURL,
		&processingState,
		&pendingUpdate,
		&pendingSince,
		&scheduledForDeletion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.ProcessingState = ProcessingState(processingState)
	d.PendingUpdate = pendingUpdate != 0
	d.ScheduledForDeletion = scheduledForDeletion != 0

	if description.Valid {
		d.Description = &description.String
	}
	if pendingSince.Valid {
		t, err := time.Parse(time.RFC3339, pendingSince.String)
		if err == nil {
			d.PendingSince = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
