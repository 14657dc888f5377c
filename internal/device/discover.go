package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// Discover reads the full raw datapoint map of a device that has no profile
// yet, for profile detection. It follows the client retry policy (fixed
// attempts, no delay) and closes every session it opens.
//
// Parameters:
//   - ctx: bounds the whole discovery
//   - identity: device to query
//   - opts: RetryAttempts, timeouts, Dial, Logger and Metrics are used
//
// Returns:
//   - tuya.DPS: the device's STATUS response
//   - error: ErrInvalidIdentity, or the last request error
func Discover(ctx context.Context, identity Identity, opts Options) (tuya.DPS, error) {
	if err := identity.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	cfg := tuya.Config{
		Address:        identity.Address,
		DeviceID:       identity.ID,
		LocalKey:       identity.LocalKey,
		Version:        identity.Version,
		ConnectTimeout: opts.ConnectTimeout,
		RequestTimeout: opts.RequestTimeout,
	}

	var lastErr error
	for attempt := 1; attempt <= opts.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = fmt.Errorf("%w: %w", tuya.ErrConnection, err)
			}
			break
		}

		start := time.Now()
		dps, err := discoverOnce(ctx, opts.Dial, cfg)
		opts.Metrics.ObserveRequest(identity.ID, tuya.KindStatus, err, time.Since(start))
		if err == nil {
			return dps, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		if attempt < opts.RetryAttempts {
			opts.Metrics.IncRetry(identity.ID, tuya.KindStatus)
			opts.Logger.Debug("retrying device discovery", "device_id", identity.ID, "attempt", attempt, "error", err)
		}
	}
	return nil, fmt.Errorf("discover %s: %w", identity.ID, lastErr)
}

func discoverOnce(ctx context.Context, dial Dialer, cfg tuya.Config) (tuya.DPS, error) {
	conn, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck // session is single-use
	return conn.Request(ctx, tuya.KindStatus, nil)
}
