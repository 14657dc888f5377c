package device

import (
	"context"
	"time"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// StateHistoryEntry represents a single recorded device state change.
//
// Each entry stores the decoded properties and the raw datapoints visible
// at the time of the change. This provides a local audit trail even when
// the time-series database is unavailable.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the device.
	DeviceID string `json:"device_id"`

	// Properties is the decoded property snapshot.
	Properties map[string]any `json:"properties"`

	// DPS is the raw datapoint snapshot.
	DPS tuya.DPS `json:"dps"`

	// Source identifies what caused the change (refresh, write, device, ...).
	Source Source `json:"source"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange records a device state change.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - change: State change to persist
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, change StateChange) error

	// GetHistory returns recent state change history for the device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []StateHistoryEntry: Ordered newest-first history entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
