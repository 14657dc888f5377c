package tuya

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/localtuya-core/internal/device"
)

// CommandMessage is received on localtuya/command/{device_id}.
type CommandMessage struct {
	// ID correlates the command in logs. Optional.
	ID string `json:"id,omitempty"`

	// Properties are written through the debounced write path.
	Properties map[string]any `json:"properties,omitempty"`

	// Anticipate sets expected values without sending anything.
	Anticipate map[string]any `json:"anticipate,omitempty"`

	// Refresh forces a STATUS request regardless of cache age.
	Refresh bool `json:"refresh,omitempty"`

	// Ping sends a heartbeat and logs the round trip.
	Ping bool `json:"ping,omitempty"`
}

// ParseCommand decodes and checks a command payload.
//
// Returns:
//   - CommandMessage: the decoded command
//   - error: ErrInvalidCommand if the JSON is malformed or names no action
func ParseCommand(payload []byte) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if len(cmd.Properties) == 0 && len(cmd.Anticipate) == 0 && !cmd.Refresh && !cmd.Ping {
		return CommandMessage{}, fmt.Errorf("%w: no properties, anticipate, refresh or ping", ErrInvalidCommand)
	}
	return cmd, nil
}

// StateMessage is published retained on localtuya/state/{device_id}.
type StateMessage struct {
	DeviceID   string         `json:"device_id"`
	UniqueID   string         `json:"unique_id"`
	Name       string         `json:"name"`
	Profile    string         `json:"profile"`
	Source     device.Source  `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}

// NewStateMessage builds the state document for a change on c.
func NewStateMessage(c *device.Client, change device.StateChange) StateMessage {
	return StateMessage{
		DeviceID:   change.DeviceID,
		UniqueID:   c.UniqueID(),
		Name:       c.Name(),
		Profile:    c.Profile().ID,
		Source:     change.Source,
		Timestamp:  change.Timestamp.UTC(),
		Properties: change.Properties,
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates MQTT is connected and every device answered its last request.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates MQTT is down or some devices are unreachable.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting is published while devices are being set up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published on graceful shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on localtuya/health/bridge.
type HealthMessage struct {
	BridgeID      string               `json:"bridge_id"`
	Status        HealthStatus         `json:"status"`
	Reason        string               `json:"reason,omitempty"`
	Version       string               `json:"version"`
	Timestamp     time.Time            `json:"timestamp"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Devices       device.RegistryStats `json:"devices"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats device.RegistryStats, startTime time.Time) HealthMessage {
	now := time.Now().UTC()
	return HealthMessage{
		BridgeID:      bridgeID,
		Status:        status,
		Version:       version,
		Timestamp:     now,
		UptimeSeconds: int64(now.Sub(startTime).Seconds()),
		Devices:       stats,
	}
}
