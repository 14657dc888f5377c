package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/localtuya-core/internal/codec"
	"github.com/nerrad567/localtuya-core/internal/profile"
	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// localKeySize is the length of a device local key.
const localKeySize = 16

// Client is the property-level view of one physical device.
//
// Reads are served from memory: a pending write wins, then a cached value
// within the staleness horizon, otherwise codec.Unknown. Writes are encoded
// and validated synchronously, become visible immediately, and are
// coalesced into one SET after the debounce window.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent refreshes share a single STATUS request.
type Client struct {
	identity  Identity
	profile   *profile.Profile
	opts      Options
	logger    Logger
	flushKey  string
	scheduler Scheduler
	ownsSched bool

	// ctx bounds background work (flushes, shared refreshes). Cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// mu protects state, overlay, pending and closed.
	mu      sync.Mutex
	state   cachedState
	overlay overlay
	pending *batch
	closed  bool

	connMu sync.Mutex
	conn   tuya.Connector

	refreshes singleflight.Group

	onChangeMu sync.RWMutex
	onChange   func(StateChange)

	closeOnce sync.Once
}

// ClientStatus is a point-in-time summary of a client.
type ClientStatus struct {
	Connected     bool       `json:"connected"`
	CacheValid    bool       `json:"cache_valid"`
	RefreshedAt   time.Time  `json:"refreshed_at,omitzero"`
	PendingWrites int        `json:"pending_writes"`
	Conn          tuya.Stats `json:"conn"`
}

// New creates a client. No connection is made until the first request.
//
// Parameters:
//   - identity: device identity; ID, Address and a 16-byte LocalKey are required
//   - prof: the profile describing the device's properties
//   - opts: tuning; zero values take package defaults
//
// Returns:
//   - *Client: ready to use
//   - error: ErrInvalidIdentity or ErrInvalidOptions
func New(identity Identity, prof *profile.Profile, opts Options) (*Client, error) {
	if err := identity.validate(); err != nil {
		return nil, err
	}
	if prof == nil {
		return nil, fmt.Errorf("%w: profile is required for %s", ErrInvalidIdentity, identity.ID)
	}

	opts.applyDefaults()
	if opts.OverlayTimeout >= opts.StalenessHorizon {
		return nil, fmt.Errorf("%w: overlay timeout %s must be shorter than staleness horizon %s",
			ErrInvalidOptions, opts.OverlayTimeout, opts.StalenessHorizon)
	}

	c := &Client{
		identity:  identity,
		profile:   prof,
		opts:      opts,
		logger:    opts.Logger,
		flushKey:  "flush:" + identity.ID,
		scheduler: opts.Scheduler,
		overlay:   newOverlay(opts.OverlayTimeout),
	}
	if c.scheduler == nil {
		c.scheduler = NewTimerScheduler()
		c.ownsSched = true
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// ID returns the device id.
func (c *Client) ID() string { return c.identity.ID }

// Identity returns the identity the client was created with.
func (c *Client) Identity() Identity { return c.identity }

// Profile returns the device profile.
func (c *Client) Profile() *profile.Profile { return c.profile }

// Name returns the configured name, or the profile name with {device_id}
// expanded when none was configured.
func (c *Client) Name() string {
	if c.identity.Name != "" {
		return c.identity.Name
	}
	return c.profile.DisplayName(map[string]string{"device_id": c.identity.ID})
}

// UniqueID returns the configured unique id, defaulting to the device id.
func (c *Client) UniqueID() string {
	if c.identity.UniqueID != "" {
		return c.identity.UniqueID
	}
	return c.identity.ID
}

// SetOnStateChange registers the callback invoked after every visible state
// change. The callback runs on the goroutine that caused the change and
// must not block.
func (c *Client) SetOnStateChange(fn func(StateChange)) {
	c.onChangeMu.Lock()
	c.onChange = fn
	c.onChangeMu.Unlock()
}

// GetProperty returns the current abstract value of a property, or
// codec.Unknown when it has no fresh value. It never performs I/O.
//
// Returns:
//   - any: decoded value or codec.Unknown
//   - error: ErrUnknownProperty if the profile does not expose the property
func (c *Client) GetProperty(name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Clock()
	b, err := c.profile.Resolve(name, c.selector(now, nil))
	if err != nil {
		return nil, err
	}
	return c.decodeLocked(b, now), nil
}

// GetProperties returns every property the profile exposes.
func (c *Client) GetProperties() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.propertiesLocked(c.opts.Clock())
}

// SetProperty writes one property and waits for the SET to complete.
func (c *Client) SetProperty(ctx context.Context, name string, value any) error {
	return c.SetProperties(ctx, map[string]any{name: value})
}

// SetProperties writes several properties and waits for the SET that
// carries them. Validation errors are returned before anything is staged.
func (c *Client) SetProperties(ctx context.Context, values map[string]any) error {
	w, err := c.SetPropertiesAsync(values)
	if err != nil {
		return err
	}
	return w.Wait(ctx)
}

// SetPropertiesAsync validates and stages a write without waiting.
//
// Every value is encoded before anything changes, so a validation failure
// leaves the client untouched and sends nothing. On success the new values
// are visible to GetProperty at once and the debounce timer is re-armed;
// the SET is sent when the window elapses with no further writes.
//
// Parameters:
//   - values: property name -> abstract value
//
// Returns:
//   - *Write: handle on the coalesced SET
//   - error: *codec.ValidationError, ErrUnknownProperty or ErrClientClosed
func (c *Client) SetPropertiesAsync(values map[string]any) (*Write, error) {
	if len(values) == 0 {
		return completedWrite(nil), nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}

	now := c.opts.Clock()
	staged, err := c.encodeLocked(values, now)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	for dp, raw := range staged {
		c.overlay.put(dp, raw, now)
	}
	if c.pending == nil {
		c.pending = newBatch()
	}
	c.pending.dps.Merge(staged)
	b := c.pending
	c.scheduler.Arm(c.flushKey, c.opts.DebounceWindow, c.flush)

	change, notify := c.changeLocked(SourceWrite, now)
	c.mu.Unlock()

	c.logger.Debug("write staged", "device_id", c.identity.ID, "datapoints", len(staged))
	if notify {
		c.emit(change)
	}
	return &Write{b: b}, nil
}

// AnticipatePropertyValue makes a value visible as if it had been written,
// without sending anything. The device confirms or the entry expires.
func (c *Client) AnticipatePropertyValue(name string, value any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	now := c.opts.Clock()
	staged, err := c.encodeLocked(map[string]any{name: value}, now)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	for dp, raw := range staged {
		c.overlay.put(dp, raw, now)
	}

	change, notify := c.changeLocked(SourceAnticipate, now)
	c.mu.Unlock()

	if notify {
		c.emit(change)
	}
	return nil
}

// Refresh fetches the full state if the cache is stale. Concurrent callers
// share one STATUS request. When every attempt fails the cache is
// invalidated, so reads return codec.Unknown, and the error is returned.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	stale := c.state.stale(c.opts.Clock(), c.opts.StalenessHorizon)
	c.mu.Unlock()

	if !stale {
		return nil
	}
	return c.ForceRefresh(ctx)
}

// ForceRefresh fetches the full state regardless of cache age.
//
// The STATUS request runs on the client's own context; cancelling ctx only
// stops this caller from waiting.
func (c *Client) ForceRefresh(ctx context.Context) error {
	ch := c.refreshes.DoChan("status", func() (any, error) {
		return nil, c.fetchStatus()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping sends a heartbeat over the session, dialling if necessary.
func (c *Client) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	_, err := c.request(ctx, tuya.KindHeartbeat, nil)
	return err
}

// RawState returns a copy of the cached raw datapoints and the time of the
// last full refresh. Pending writes are not included.
func (c *Client) RawState() (tuya.DPS, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot(), c.state.refreshedAt
}

// PendingState returns a copy of every unexpired pending write.
func (c *Client) PendingState() tuya.DPS {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlay.active(c.opts.Clock())
}

// Status returns a summary of the client.
func (c *Client) Status() ClientStatus {
	c.mu.Lock()
	st := ClientStatus{
		CacheValid:    c.state.valid,
		RefreshedAt:   c.state.refreshedAt,
		PendingWrites: len(c.overlay.active(c.opts.Clock())),
	}
	c.mu.Unlock()

	c.connMu.Lock()
	if c.conn != nil {
		st.Conn = c.conn.Stats()
		st.Connected = c.conn.IsConnected()
	}
	c.connMu.Unlock()

	return st
}

// Close stops the debounce timer, fails any write still waiting for its
// window with ErrClientClosed, and closes the session. Safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		b := c.pending
		c.pending = nil
		c.mu.Unlock()

		c.scheduler.Cancel(c.flushKey)
		if c.ownsSched {
			c.scheduler.Stop()
		}
		if b != nil {
			b.finish(ErrClientClosed)
		}
		c.cancel()

		c.connMu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	})
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// flush sends the pending batch as one SET. Runs on the scheduler.
func (c *Client) flush() {
	c.mu.Lock()
	b := c.pending
	c.pending = nil
	closed := c.closed
	c.mu.Unlock()

	if b == nil {
		return
	}
	if closed {
		b.finish(ErrClientClosed)
		return
	}

	payload := c.opts.FixedDPS.Clone()
	payload.Merge(b.dps)
	c.opts.Metrics.ObserveCoalesced(c.identity.ID, len(b.dps))

	resp, err := c.request(c.ctx, tuya.KindSet, payload)
	if err != nil {
		c.logger.Warn("device write failed", "device_id", c.identity.ID, "datapoints", len(payload), "error", err)
		b.finish(err)
		return
	}

	if len(resp) > 0 {
		c.mu.Lock()
		now := c.opts.Clock()
		c.state.merge(resp, now)
		c.overlay.confirm(resp)
		change, notify := c.changeLocked(SourceDevice, now)
		c.mu.Unlock()
		if notify {
			c.emit(change)
		}
	}

	c.logger.Debug("device write sent", "device_id", c.identity.ID, "datapoints", len(payload))
	b.finish(nil)
}

// fetchStatus performs one (retried) STATUS and applies the outcome.
func (c *Client) fetchStatus() error {
	dps, err := c.request(c.ctx, tuya.KindStatus, nil)

	c.mu.Lock()
	now := c.opts.Clock()
	source := SourceRefresh
	if err != nil {
		c.state.invalidate()
		source = SourceInvalidate
	} else {
		c.state.replace(dps, now)
		c.overlay.confirm(dps)
	}
	change, notify := c.changeLocked(source, now)
	c.mu.Unlock()

	if err != nil {
		c.opts.Metrics.IncInvalidation(c.identity.ID)
		c.logger.Warn("device refresh failed, cached state invalidated", "device_id", c.identity.ID, "error", err)
	}
	if notify {
		c.emit(change)
	}
	return err
}

// request runs a command with a fixed number of attempts and no delay
// between them. A failed session is dropped and re-dialled on the next
// attempt.
func (c *Client) request(ctx context.Context, kind tuya.CommandKind, dps tuya.DPS) (tuya.DPS, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = fmt.Errorf("%w: %w", tuya.ErrConnection, err)
			}
			break
		}

		start := time.Now()
		conn, err := c.connection(ctx)
		var resp tuya.DPS
		if err == nil {
			resp, err = conn.Request(ctx, kind, dps)
		}
		c.opts.Metrics.ObserveRequest(c.identity.ID, kind, err, time.Since(start))
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if conn != nil && (errors.Is(err, tuya.ErrConnection) || !conn.IsConnected()) {
			c.dropConnection(conn)
		}
		if !retryable(err) {
			break
		}
		if attempt < c.opts.RetryAttempts {
			c.opts.Metrics.IncRetry(c.identity.ID, kind)
			c.logger.Debug("retrying device request", "device_id", c.identity.ID,
				"kind", kind.String(), "attempt", attempt, "error", err)
		}
	}
	return nil, fmt.Errorf("%s %s: %w", kind, c.identity.ID, lastErr)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return !errors.Is(err, tuya.ErrInvalidKey) && !errors.Is(err, tuya.ErrUnsupportedVersion)
}

// connection returns the live session, dialling one if needed.
func (c *Client) connection(ctx context.Context) (tuya.Connector, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		if c.conn.IsConnected() {
			return c.conn, nil
		}
		c.conn.Close() //nolint:errcheck // already failed
		c.conn = nil
	}

	conn, err := c.opts.Dial(ctx, tuya.Config{
		Address:        c.identity.Address,
		DeviceID:       c.identity.ID,
		LocalKey:       c.identity.LocalKey,
		Version:        c.identity.Version,
		ConnectTimeout: c.opts.ConnectTimeout,
		RequestTimeout: c.opts.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	if l, ok := conn.(interface{ SetLogger(tuya.Logger) }); ok {
		l.SetLogger(c.logger)
	}

	c.logger.Debug("device session opened", "device_id", c.identity.ID, "address", c.identity.Address)
	c.conn = conn
	return conn, nil
}

// dropConnection closes conn if it is still the current session.
func (c *Client) dropConnection(conn tuya.Connector) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == conn {
		c.conn.Close() //nolint:errcheck // already failed
		c.conn = nil
	}
}

// encodeLocked turns abstract values into raw datapoints without side
// effects. Redirect selectors see values set in the same call.
func (c *Client) encodeLocked(values map[string]any, now time.Time) (tuya.DPS, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	staged := make(tuya.DPS, len(values))
	for _, name := range names {
		value := values[name]

		b, err := c.profile.Resolve(name, c.selector(now, values))
		if err != nil {
			return nil, err
		}
		if b.Readonly {
			return nil, &codec.ValidationError{Property: name, Value: value, Reason: "property is read-only"}
		}

		current, ok := staged[b.Datapoint]
		if !ok {
			current = c.currentRawLocked(b.Datapoint, now)
		}

		raw, err := b.Transform.Encode(value, current)
		if err != nil {
			return nil, withProperty(err, name)
		}
		staged[b.Datapoint] = raw
	}
	return staged, nil
}

// selector returns the redirect selector lookup for Resolve. Values being
// written take precedence over the visible state.
func (c *Client) selector(now time.Time, writing map[string]any) func(string) any {
	return func(name string) any {
		if v, ok := writing[name]; ok {
			return v
		}
		b, ok := c.profile.Binding(name)
		if !ok {
			return codec.Unknown
		}
		return c.decodeLocked(b, now)
	}
}

// decodeLocked returns the visible abstract value of a binding.
func (c *Client) decodeLocked(b profile.Binding, now time.Time) any {
	raw, ok := c.overlay.get(b.Datapoint, now)
	if !ok {
		raw, ok = c.state.fresh(b.Datapoint, now, c.opts.StalenessHorizon)
	}
	if !ok {
		return codec.Unknown
	}

	v, err := b.Transform.Decode(raw)
	if err != nil {
		c.logger.Debug("cannot decode datapoint", "device_id", c.identity.ID,
			"property", b.Property, "dp", b.Datapoint, "error", err)
		return codec.Unknown
	}
	return v
}

// currentRawLocked returns the base value a read-modify-write transform
// builds on: a pending write, else the last cached value of any age.
func (c *Client) currentRawLocked(dp string, now time.Time) any {
	if v, ok := c.overlay.get(dp, now); ok {
		return v
	}
	if v, ok := c.state.last(dp); ok {
		return v
	}
	return nil
}

func (c *Client) propertiesLocked(now time.Time) map[string]any {
	names := c.profile.Properties()
	out := make(map[string]any, len(names))
	sel := c.selector(now, nil)
	for _, name := range names {
		b, err := c.profile.Resolve(name, sel)
		if err != nil {
			out[name] = codec.Unknown
			continue
		}
		out[name] = c.decodeLocked(b, now)
	}
	return out
}

// changeLocked builds a notification if a callback is registered.
func (c *Client) changeLocked(source Source, now time.Time) (StateChange, bool) {
	c.onChangeMu.RLock()
	registered := c.onChange != nil
	c.onChangeMu.RUnlock()
	if !registered {
		return StateChange{}, false
	}

	dps := c.state.snapshot()
	dps.Merge(c.overlay.active(now))
	return StateChange{
		DeviceID:   c.identity.ID,
		Properties: c.propertiesLocked(now),
		DPS:        dps,
		Source:     source,
		Timestamp:  now,
	}, true
}

func (c *Client) emit(change StateChange) {
	c.onChangeMu.RLock()
	fn := c.onChange
	c.onChangeMu.RUnlock()
	if fn != nil {
		fn(change)
	}
}

// withProperty fills in the property name of a validation error.
func withProperty(err error, name string) error {
	var ve *codec.ValidationError
	if errors.As(err, &ve) && ve.Property == "" {
		ve.Property = name
	}
	return err
}
