// Package rediscache mirrors the latest visible state of every device into
// Redis so other processes can read it without talking to the service.
//
// Keys are "<prefix>device:state:<device_id>" holding the JSON state
// document also published on MQTT.
//
//	cache, err := rediscache.Connect(ctx, cfg.Redis)
//	if errors.Is(err, rediscache.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer cache.Close()
//
// Entries expire after redis.ttl when set, so a stopped service does not
// leave stale state behind indefinitely.
package rediscache
