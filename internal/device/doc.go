// Package device provides the property-level device client and the
// registry of configured devices.
//
// A Client turns a profile (internal/profile) and a session
// (internal/tuya) into named properties with read-your-writes semantics.
// Reads never block on the network.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                              Client                              │
//	│                                                                  │
//	│  GetProperty ──▶ overlay (pending writes) ──▶ cached state       │
//	│                       ▲                         ▲                │
//	│  SetProperties ──▶ encode ──▶ batch ──(debounce)──▶ SET ──┐      │
//	│                                                           │      │
//	│  Refresh ──(singleflight)──────────────────────▶ STATUS ──┤      │
//	│                                                           ▼      │
//	│                                          retry ──▶ tuya.Conn     │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Read Path
//
// A pending write within the overlay timeout wins. Otherwise a cached
// datapoint observed within the staleness horizon is decoded. Otherwise
// the value is codec.Unknown. The overlay timeout is shorter than the
// staleness horizon so a pending write never outlives the cache it shadows.
//
// # Write Path
//
// Values are validated and encoded synchronously; a *codec.ValidationError
// is returned before anything is staged or sent. Staged values join the
// pending batch and re-arm the debounce timer, so N writes inside one
// window become one SET. Fixed datapoints from Options.FixedDPS are merged
// into every SET, with batch values taking precedence.
//
// # Failure Semantics
//
// Requests are attempted Options.RetryAttempts times without delay.
// A refresh that fails every attempt invalidates the cache. A write that
// fails every attempt returns the error to its awaiters and leaves the
// overlay in place until it expires.
//
// # Usage
//
//	client, err := device.New(identity, prof, device.Options{Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Refresh(ctx); err != nil {
//	    log.Warn("refresh failed", "error", err)
//	}
//	v, _ := client.GetProperty("target_temperature")
//
//	if err := client.SetProperty(ctx, "target_temperature", 24.6); err != nil {
//	    if errors.Is(err, codec.ErrValidation) { ... }
//	}
//
// # Thread Safety
//
// Client, Registry and SQLiteStateHistoryRepository are safe for
// concurrent use.
package device
