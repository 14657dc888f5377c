// Package tuya bridges locally controlled Tuya devices to MQTT.
//
// The bridge owns one device.Client per configured device. It:
//   - resolves each device's profile from the catalogue, or detects it by
//     probing the device once when none is configured
//   - polls every client on a fixed interval so cached state stays inside
//     the staleness horizon
//   - applies commands received on localtuya/command/{device_id}
//   - fans every state change out to MQTT (retained), SQLite history,
//     InfluxDB and the Redis state mirror
//   - publishes a retained health document on localtuya/health/bridge
//
// Command payloads:
//
//	{"properties": {"power": true, "target_temperature": 21}}
//	{"anticipate": {"power": false}}
//	{"refresh": true}
//
// One message may combine the three; anticipation is applied first, then
// the write is queued, then the refresh is forced.
package tuya
