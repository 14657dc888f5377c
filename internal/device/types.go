package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// Identity holds the pass-through identity of one physical device.
type Identity struct {
	// ID is the device id (devId) used on the wire.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable device name.
	Name string `json:"name" yaml:"name"`

	// UniqueID is the host-assigned stable identifier.
	UniqueID string `json:"unique_id" yaml:"unique_id"`

	// Address is the device host or host:port.
	Address string `json:"address" yaml:"address"`

	// LocalKey is the 16-byte session key. Never serialised to JSON.
	LocalKey string `json:"-" yaml:"local_key"`

	// Version is the protocol version (empty means 3.3).
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
}

// validate checks the fields needed to open a session.
func (i Identity) validate() error {
	switch {
	case i.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidIdentity)
	case i.Address == "":
		return fmt.Errorf("%w: address is required for %s", ErrInvalidIdentity, i.ID)
	case len(i.LocalKey) != localKeySize:
		return fmt.Errorf("%w: local key for %s must be %d bytes", ErrInvalidIdentity, i.ID, localKeySize)
	}
	return nil
}

// Source identifies what caused a state change notification.
type Source string

// State change sources.
const (
	// SourceRefresh: a STATUS response replaced the cached state.
	SourceRefresh Source = "refresh"

	// SourceWrite: a write was staged and is visible optimistically.
	SourceWrite Source = "write"

	// SourceAnticipate: a value was anticipated without sending anything.
	SourceAnticipate Source = "anticipate"

	// SourceDevice: datapoints reported in a SET response were merged.
	SourceDevice Source = "device"

	// SourceInvalidate: a refresh failed and the cached state was dropped.
	SourceInvalidate Source = "invalidate"
)

// StateChange describes the visible state of a device after a change.
type StateChange struct {
	DeviceID   string         `json:"device_id"`
	Properties map[string]any `json:"properties"`
	DPS        tuya.DPS       `json:"dps"`
	Source     Source         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Metrics receives client instrumentation. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// ObserveRequest records one request attempt and its outcome.
	ObserveRequest(deviceID string, kind tuya.CommandKind, err error, duration time.Duration)

	// IncRetry counts a failed attempt that will be retried.
	IncRetry(deviceID string, kind tuya.CommandKind)

	// ObserveCoalesced records how many datapoints one SET carried.
	ObserveCoalesced(deviceID string, datapoints int)

	// IncInvalidation counts cache invalidations after failed refreshes.
	IncInvalidation(deviceID string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, tuya.CommandKind, error, time.Duration) {}
func (noopMetrics) IncRetry(string, tuya.CommandKind)                              {}
func (noopMetrics) ObserveCoalesced(string, int)                                   {}
func (noopMetrics) IncInvalidation(string)                                         {}

// Logger defines the logging interface used by clients and the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
