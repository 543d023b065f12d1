package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// TransitionLog stores and queries the append-only transition history.
//
// Records are written by SQLiteRepository.Apply; this interface covers
// everything else done with them afterwards.
type TransitionLog interface {
	// History returns recent transitions, newest first. An empty address
	// returns transitions for every device.
	History(ctx context.Context, address string, limit int) ([]Transition, error)

	// PurgeOlderThan deletes transitions created before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// PendingNotifications returns transitions whose message has not been
	// confirmed as dispatched, oldest first.
	PendingNotifications(ctx context.Context) ([]Transition, error)

	// MarkNotified records that the message for transition id was dispatched.
	MarkNotified(ctx context.Context, id int64, at time.Time) error
}

// SQLiteTransitionLog implements TransitionLog using SQLite.
type SQLiteTransitionLog struct {
	db *sql.DB
}

// NewSQLiteTransitionLog creates a new SQLite transition log.
func NewSQLiteTransitionLog(db *sql.DB) *SQLiteTransitionLog {
	return &SQLiteTransitionLog{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertTransition appends tr and returns its row id.
func insertTransition(ctx context.Context, db execer, tr Transition) (int64, error) {
	if tr.Address == "" || tr.PreviousState == tr.NewState {
		return 0, fmt.Errorf("%w: %s %s->%s", ErrInvalidTransition, tr.Address, tr.PreviousState, tr.NewState)
	}
	if tr.Notification == "" {
		tr.Notification = NotifyNone
	}

	var notifiedAt any
	if tr.NotifiedAt != nil {
		notifiedAt = formatTime(*tr.NotifiedAt)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO transitions (
			created_at, address, description, previous_state, new_state,
			notification, notified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTime(tr.CreatedAt),
		tr.Address,
		tr.Description,
		string(tr.PreviousState),
		string(tr.NewState),
		string(tr.Notification),
		notifiedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting transition for %s: %w", tr.Address, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading transition id: %w", err)
	}
	return id, nil
}

const selectTransitionColumns = `
	SELECT id, created_at, address, description, previous_state, new_state,
	       notification, notified_at
	FROM transitions`

// History returns recent transitions ordered newest first.
//
// limit defaults to 50 and is clamped to 500.
func (l *SQLiteTransitionLog) History(ctx context.Context, address string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if address == "" {
		rows, err = l.db.QueryContext(ctx,
			selectTransitionColumns+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	} else {
		rows, err = l.db.QueryContext(ctx,
			selectTransitionColumns+" WHERE address = ? ORDER BY created_at DESC, id DESC LIMIT ?",
			address, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	return scanTransitions(rows, limit)
}

// PurgeOlderThan deletes every transition created strictly before cutoff.
func (l *SQLiteTransitionLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM transitions WHERE created_at < ?",
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting transitions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// PendingNotifications returns the notification outbox, oldest first.
func (l *SQLiteTransitionLog) PendingNotifications(ctx context.Context) ([]Transition, error) {
	rows, err := l.db.QueryContext(ctx,
		selectTransitionColumns+" WHERE notification != 'none' AND notified_at IS NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying pending notifications: %w", err)
	}
	return scanTransitions(rows, 0)
}

// MarkNotified stamps transition id as dispatched. Marking an already
// stamped transition keeps the original time.
func (l *SQLiteTransitionLog) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	result, err := l.db.ExecContext(ctx,
		"UPDATE transitions SET notified_at = COALESCE(notified_at, ?) WHERE id = ?",
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("marking transition %d notified: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transition %d not found", ErrInvalidTransition, id)
	}
	return nil
}

func scanTransitions(rows *sql.Rows, sizeHint int) ([]Transition, error) {
	defer rows.Close()

	out := make([]Transition, 0, sizeHint)
	for rows.Next() {
		var (
			tr                   Transition
			createdAt            string
			previous, next, kind string
			notifiedAt           sql.NullString
		)
		if err := rows.Scan(&tr.ID, &createdAt, &tr.Address, &tr.Description,
			&previous, &next, &kind, &notifiedAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}

		var err error
		if tr.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if tr.PreviousState, err = ParseState(previous); err != nil {
			return nil, err
		}
		if tr.NewState, err = ParseState(next); err != nil {
			return nil, err
		}
		if tr.Notification, err = ParseNotifyKind(kind); err != nil {
			return nil, err
		}
		if notifiedAt.Valid {
			at, err := parseTime(notifiedAt.String)
			if err != nil {
				return nil, err
			}
			tr.NotifiedAt = &at
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}
