package device

import (
	"context"
	"time"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// Client tuning defaults.
const (
	// DefaultStalenessHorizon is how long a cached datapoint stays readable.
	DefaultStalenessHorizon = 15 * time.Second

	// DefaultOverlayTimeout is how long an unconfirmed write stays visible.
	// It must be shorter than the staleness horizon.
	DefaultOverlayTimeout = 10 * time.Second

	// DefaultDebounceWindow is the quiet period before a coalesced SET is sent.
	DefaultDebounceWindow = 100 * time.Millisecond

	// DefaultRetryAttempts is the number of attempts per request.
	DefaultRetryAttempts = 3
)

// Dialer opens a session to a device.
type Dialer func(ctx context.Context, cfg tuya.Config) (tuya.Connector, error)

// DialTCP is the default Dialer.
func DialTCP(ctx context.Context, cfg tuya.Config) (tuya.Connector, error) {
	conn, err := tuya.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options tunes a Client. Zero values take the defaults above.
type Options struct {
	StalenessHorizon time.Duration
	OverlayTimeout   time.Duration
	DebounceWindow   time.Duration
	RetryAttempts    int

	// ConnectTimeout and RequestTimeout are passed to the Dialer.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// FixedDPS are raw datapoints merged into every SET.
	FixedDPS tuya.DPS

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	// Scheduler runs the debounce timer. Default: a private timer scheduler.
	Scheduler Scheduler

	// Dial opens device sessions. Default: DialTCP.
	Dial Dialer

	Logger  Logger
	Metrics Metrics
}

func (o *Options) applyDefaults() {
	if o.StalenessHorizon <= 0 {
		o.StalenessHorizon = DefaultStalenessHorizon
	}
	if o.OverlayTimeout <= 0 {
		o.OverlayTimeout = DefaultOverlayTimeout
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Dial == nil {
		o.Dial = DialTCP
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
}
