package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/iotmon/internal/infrastructure/database"
)

// timeLayout is RFC3339 with a fixed-width fraction so stored timestamps
// sort lexicographically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dateLayout is the format of the last_purge_date meta value.
const dateLayout = "2006-01-02"

// monitor_meta keys.
const (
	metaConfigModTime = "config_mod_time"
	metaLastPurgeDate = "last_purge_date"
)

// Repository defines the device registry persistence operations.
type Repository interface {
	// List returns every registered device ordered by address.
	List(ctx context.Context) ([]Device, error)

	// Get returns one device. Returns ErrDeviceNotFound if absent.
	Get(ctx context.Context, address string) (*Device, error)

	// ReplaceAll drops every device row and inserts devices in their place,
	// storing configModTime as the last reconciled config version.
	ReplaceAll(ctx context.Context, devices []Device, configModTime time.Time) error

	// Apply persists an Outcome and its transition record atomically.
	Apply(ctx context.Context, out Outcome) (*Transition, error)

	// ConfigModTime returns the config version stored by ReplaceAll.
	ConfigModTime(ctx context.Context) (t time.Time, ok bool, err error)

	// LastPurgeDate returns the local date (YYYY-MM-DD) of the last retention sweep.
	LastPurgeDate(ctx context.Context) (date string, ok bool, err error)

	// SetLastPurgeDate records the local date of a retention sweep.
	SetLastPurgeDate(ctx context.Context, date string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDeviceColumns = `
	SELECT address, description, state, last_state_change,
	       suppress_count, current_suppress_count, seen_up
	FROM devices`

// List returns every registered device ordered by address.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDeviceColumns+" ORDER BY address")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Get returns the device registered under address.
func (r *SQLiteRepository) Get(ctx context.Context, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceColumns+" WHERE address = ?", address)
	dev, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// ReplaceAll rebuilds the registry in one transaction.
//
// Every existing row is discarded, including in-flight suppression progress;
// rows for devices still configured come back UNKNOWN with full tolerance
// because callers build them with NewDevice.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, devices []Device, configModTime time.Time) error {
	for _, dev := range devices {
		if err := validateDevice(dev); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (
			address, description, state, last_state_change,
			suppress_count, current_suppress_count, seen_up
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, dev := range devices {
		if _, err := stmt.ExecContext(ctx,
			dev.Address,
			dev.Description,
			string(dev.State),
			formatTime(dev.LastStateChange),
			dev.SuppressCount,
			dev.CurrentSuppressCount,
			boolToInt(dev.SeenUp),
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", dev.Address, err)
		}
	}

	if err := database.SetMeta(ctx, tx, metaConfigModTime, formatTime(configModTime)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registry rebuild: %w", err)
	}
	return nil
}

// Apply persists out if it carries a write.
//
// The update is conditional on the row still holding out.Previous's state
// and counter. The transition record, if any, is inserted in the same
// transaction and returned with its ID set. Nothing is considered applied
// unless this returns a nil error.
func (r *SQLiteRepository) Apply(ctx context.Context, out Outcome) (*Transition, error) {
	if !out.Write {
		return nil, nil
	}
	if err := validateDevice(out.Device); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	next := out.Device
	result, err := tx.ExecContext(ctx, `
		UPDATE devices
		SET state = ?, last_state_change = ?, current_suppress_count = ?, seen_up = ?
		WHERE address = ? AND state = ? AND current_suppress_count = ?`,
		string(next.State),
		formatTime(next.LastStateChange),
		next.CurrentSuppressCount,
		boolToInt(next.SeenUp),
		next.Address,
		string(out.Previous.State),
		out.Previous.CurrentSuppressCount,
	)
	if err != nil {
		return nil, fmt.Errorf("updating device %s: %w", next.Address, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM devices WHERE address = ?", next.Address).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("checking device %s: %w", next.Address, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrConcurrentUpdate, next.Address)
	}

	var recorded *Transition
	if out.Transition != nil {
		tr := *out.Transition
		id, err := insertTransition(ctx, tx, tr)
		if err != nil {
			return nil, err
		}
		tr.ID = id
		recorded = &tr
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing device %s: %w", next.Address, err)
	}
	return recorded, nil
}

// ConfigModTime returns the config modification time of the last rebuild.
func (r *SQLiteRepository) ConfigModTime(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := database.GetMeta(ctx, r.db, metaConfigModTime)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// LastPurgeDate returns the local date of the last retention sweep.
func (r *SQLiteRepository) LastPurgeDate(ctx context.Context) (string, bool, error) {
	return database.GetMeta(ctx, r.db, metaLastPurgeDate)
}

// SetLastPurgeDate records the local date of a retention sweep.
func (r *SQLiteRepository) SetLastPurgeDate(ctx context.Context, date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("invalid purge date %q: %w", date, err)
	}
	return database.SetMeta(ctx, r.db, metaLastPurgeDate, date)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var dev Device
	var state, lastChange string
	var seenUp int

	if err := row.Scan(
		&dev.Address,
		&dev.Description,
		&state,
		&lastChange,
		&dev.SuppressCount,
		&dev.CurrentSuppressCount,
		&seenUp,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	st, err := ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dev.Address, err)
	}
	dev.State = st

	if dev.LastStateChange, err = parseTime(lastChange); err != nil {
		return nil, fmt.Errorf("device %s: %w", dev.Address, err)
	}
	dev.SeenUp = seenUp != 0
	return &dev, nil
}

func validateDevice(dev Device) error {
	switch {
	case dev.Address == "":
		return fmt.Errorf("%w: address is required", ErrInvalidDevice)
	case dev.SuppressCount < 0:
		return fmt.Errorf("%w: %s: negative suppress count", ErrInvalidDevice, dev.Address)
	case dev.CurrentSuppressCount < 0 || dev.CurrentSuppressCount > dev.SuppressCount:
		return fmt.Errorf("%w: %s: current suppress count %d outside [0, %d]",
			ErrInvalidDevice, dev.Address, dev.CurrentSuppressCount, dev.SuppressCount)
	}
	if _, err := ParseState(string(dev.State)); err != nil {
		return fmt.Errorf("%w: %s", err, dev.Address)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
