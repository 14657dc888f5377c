package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat has fixed-width fractional seconds so that stored
	// timestamps sort lexically.
	historyTimeFormat = "2006-01-02T15:04:05.000Z"
)

// Ensure SQLiteStateHistoryRepository implements StateHistoryRepository.
var _ StateHistoryRepository = (*SQLiteStateHistoryRepository)(nil)

// SQLiteStateHistoryRepository implements StateHistoryRepository using SQLite.
//
// It stores property and datapoint snapshots as JSON in the state_history table.
type SQLiteStateHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStateHistoryRepository creates a new SQLite state history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteStateHistoryRepository: Repository instance ready for use
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db, now: time.Now}
}

// RecordStateChange inserts a new state history entry for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - change: State change to persist; a zero Timestamp means now
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, change StateChange) error {
	if change.DeviceID == "" {
		return errors.New("device id is required")
	}
	if change.Source == "" {
		change.Source = SourceRefresh
	}
	if change.Properties == nil {
		change.Properties = map[string]any{}
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = r.now()
	}

	propsJSON, err := json.Marshal(change.Properties)
	if err != nil {
		return fmt.Errorf("marshalling properties: %w", err)
	}
	dpsJSON, err := json.Marshal(change.DPS)
	if err != nil {
		return fmt.Errorf("marshalling dps: %w", err)
	}
	if change.DPS == nil {
		dpsJSON = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, properties, dps, source, created_at) VALUES (?, ?, ?, ?, ?)",
		change.DeviceID,
		string(propsJSON),
		string(dpsJSON),
		string(change.Source),
		change.Timestamp.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// GetHistory returns recent state history entries for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateHistoryEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error) {
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, properties, dps, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StateHistoryEntry
		var propsJSON, dpsJSON, source, createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &propsJSON, &dpsJSON, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		if err := json.Unmarshal([]byte(propsJSON), &entry.Properties); err != nil {
			return nil, fmt.Errorf("unmarshalling properties: %w", err)
		}
		if err := json.Unmarshal([]byte(dpsJSON), &entry.DPS); err != nil {
			return nil, fmt.Errorf("unmarshalling dps: %w", err)
		}
		entry.Source = Source(source)

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes history entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse(historyTimeFormat, value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
