package influxdb

import (
	"maps"
	"slices"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementDeviceMetrics holds one field per numeric property of a device.
	MeasurementDeviceMetrics = "device_metrics"

	// MeasurementDeviceRequests holds per-request round-trip durations.
	MeasurementDeviceRequests = "device_requests"
)

// WriteProperties records the numeric and boolean properties of one device
// as a single device_metrics point. Booleans become 0/1; strings, blobs and
// unknown values are skipped. Nothing is written when no field qualifies.
//
// Parameters:
//   - deviceID: tag value
//   - properties: decoded property snapshot
//   - ts: observation time (zero means now)
//
// Returns:
//   - int: number of fields written
func (c *Client) WriteProperties(deviceID string, properties map[string]any, ts time.Time) int {
	if !c.IsConnected() {
		return 0
	}

	fields := NumericFields(properties)
	if len(fields) == 0 {
		return 0
	}
	if ts.IsZero() {
		ts = c.now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceMetrics,
		map[string]string{"device_id": deviceID},
		fields,
		ts,
	))
	return len(fields)
}

// WriteRequest records one device request round trip.
func (c *Client) WriteRequest(deviceID, kind string, duration time.Duration, failed bool) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceRequests,
		map[string]string{"device_id": deviceID, "kind": kind},
		map[string]any{
			"duration_ms": float64(duration) / float64(time.Millisecond),
			"failed":      failed,
		},
		c.now(),
	))
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}

// NumericFields converts a property snapshot into InfluxDB float fields.
func NumericFields(properties map[string]any) map[string]any {
	fields := make(map[string]any, len(properties))
	for _, name := range slices.Sorted(maps.Keys(properties)) {
		switch v := properties[name].(type) {
		case bool:
			if v {
				fields[name] = 1.0
			} else {
				fields[name] = 0.0
			}
		case float64:
			fields[name] = v
		case float32:
			fields[name] = float64(v)
		case int:
			fields[name] = float64(v)
		case int64:
			fields[name] = float64(v)
		}
	}
	return fields
}
