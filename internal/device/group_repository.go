package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GroupRepository defines persistence operations for device groups.
type GroupRepository interface {
	// Create inserts a new device group.
	Create(ctx context.Context, group *DeviceGroup) error
	// GetByID retrieves a device group by ID.
	GetByID(ctx context.Context, id string) (*DeviceGroup, error)
	// List retrieves all device groups.
	List(ctx context.Context) ([]DeviceGroup, error)
	// Update modifies an existing device group.
	Update(ctx context.Context, group *DeviceGroup) error
	// Delete removes a device group by ID.
	Delete(ctx context.Context, id string) error

	// SetMembers replaces a group's membership with the given device IDs.
	SetMembers(ctx context.Context, groupID string, deviceIDs []int64) error
	// GetMembers retrieves a group's membership records.
	GetMembers(ctx context.Context, groupID string) ([]GroupMember, error)
	// GetMemberDeviceIDs retrieves just the device IDs in a group.
	GetMemberDeviceIDs(ctx context.Context, groupID string) ([]int64, error)
}

// SQLiteGroupRepository implements GroupRepository using SQLite.
type SQLiteGroupRepository struct {
	db *sql.DB
}

// NewSQLiteGroupRepository creates a new SQLite-backed group repository.
//
// Parameters:
//   - db: Open SQLite connection used for group queries
//
// Returns:
//   - *SQLiteGroupRepository: Repository instance ready for use
func NewSQLiteGroupRepository(db *sql.DB) *SQLiteGroupRepository {
	return &SQLiteGroupRepository{db: db}
}

// Create inserts a new device group.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - group: Group definition to persist
//
// Returns:
//   - error: nil on success, ErrGroupExists on conflict, otherwise a database error
func (r *SQLiteGroupRepository) Create(ctx context.Context, group *DeviceGroup) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}

	if group.ID == "" {
		group.ID = GenerateGroupID()
	}

	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	query := `INSERT INTO device_groups (
			id, name, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		group.ID,
		group.Name,
		nullableString(group.Description),
		group.CreatedAt.Format(time.RFC3339),
		group.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("inserting device group: %w", err)
	}

	return nil
}

// GetByID retrieves a device group by ID.
func (r *SQLiteGroupRepository) GetByID(ctx context.Context, id string) (*DeviceGroup, error) {
	query := `SELECT id, name, description, created_at, updated_at
		FROM device_groups WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	group, err := scanGroupRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("querying group by id: %w", err)
	}
	return group, nil
}

// List retrieves all device groups.
func (r *SQLiteGroupRepository) List(ctx context.Context) ([]DeviceGroup, error) {
	query := `SELECT id, name, description, created_at, updated_at
		FROM device_groups ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	var groups []DeviceGroup
	for rows.Next() {
		group, err := scanGroupRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		groups = append(groups, *group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}

	return groups, nil
}

// Update modifies an existing device group.
func (r *SQLiteGroupRepository) Update(ctx context.Context, group *DeviceGroup) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}

	group.UpdatedAt = time.Now().UTC()

	query := `UPDATE device_groups SET name = ?, description = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		group.Name,
		nullableString(group.Description),
		group.UpdatedAt.Format(time.RFC3339),
		group.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("updating device group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	return nil
}

// Delete removes a device group by ID.
// Membership rows are removed by the ON DELETE CASCADE constraint.
func (r *SQLiteGroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	return nil
}

// SetMembers replaces a group's membership with the given device IDs.
// The replacement runs in a transaction so concurrent readers never see a
// half-updated membership.
func (r *SQLiteGroupRepository) SetMembers(ctx context.Context, groupID string, deviceIDs []int64) error {
	// Verify the group exists first for a clean error
	if _, err := r.GetByID(ctx, groupID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	if _, err := tx.ExecContext(ctx, "DELETE FROM device_group_members WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("clearing group members: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, deviceID := range deviceIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO device_group_members (group_id, device_id, added_at) VALUES (?, ?, ?)",
			groupID, deviceID, now,
		)
		if err != nil {
			return fmt.Errorf("inserting group member %d: %w", deviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing group members: %w", err)
	}

	return nil
}

// GetMembers retrieves a group's membership records.
func (r *SQLiteGroupRepository) GetMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	query := `SELECT group_id, device_id, added_at
		FROM device_group_members WHERE group_id = ? ORDER BY device_id`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		var addedAt string
		if err := rows.Scan(&m.GroupID, &m.DeviceID, &addedAt); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, addedAt); err == nil {
			m.AddedAt = t
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group members: %w", err)
	}

	return members, nil
}

// GetMemberDeviceIDs retrieves just the device IDs in a group.
func (r *SQLiteGroupRepository) GetMemberDeviceIDs(ctx context.Context, groupID string) ([]int64, error) {
	members, err := r.GetMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.DeviceID)
	}
	return ids, nil
}

// scanGroupRow scans a row or rows result into a DeviceGroup.
func scanGroupRow(scanner rowScanner) (*DeviceGroup, error) {
	var g DeviceGroup
	var description sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(&g.ID, &g.Name, &description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		g.Description = &description.String
	}

	var parseErr error
	g.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	g.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &g, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
