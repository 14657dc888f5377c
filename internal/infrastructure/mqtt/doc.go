// Package mqtt connects localtuya-core to an MQTT broker.
//
// The device bridge publishes every device's visible state as a retained
// JSON document and consumes per-device commands:
//
//	localtuya/state/{device_id}    retained property snapshot
//	localtuya/command/{device_id}  {"properties": {...}} | {"anticipate": {...}} | {"refresh": true}
//	localtuya/health/bridge        retained bridge health
//	localtuya/system/status        retained online/offline (also the will)
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1, handle)
//
// paho handles reconnection with backoff between reconnect.initial_delay
// and reconnect.max_delay; tracked subscriptions are replayed on every
// reconnect.
package mqtt
