package tuya

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for device communication.
const (
	// defaultPort is the TCP port devices listen on for local control.
	defaultPort = "6668"

	// defaultConnectTimeout is the maximum time to wait for the TCP dial.
	defaultConnectTimeout = 5 * time.Second

	// defaultRequestTimeout is the maximum time for one request/response round trip.
	defaultRequestTimeout = 5 * time.Second

	// maxSkippedFrames bounds how many unrelated frames (heartbeats, stray
	// pushes) are discarded while waiting for a response.
	maxSkippedFrames = 8
)

// Config holds the identity and timeouts for one device session.
type Config struct {
	// Address is the device host, optionally with ":port" (default 6668).
	Address string

	// DeviceID is the device id (devId).
	DeviceID string

	// LocalKey is the 16-byte AES key.
	LocalKey string

	// Version is the protocol version. Empty means 3.3.
	Version string

	// ConnectTimeout bounds the TCP dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout bounds one round trip. Default: 5 seconds.
	RequestTimeout time.Duration
}

// Stats holds per-connection counters.
type Stats struct {
	RequestsTotal uint64
	FramesTx      uint64
	FramesRx      uint64
	FramesSkipped uint64 // frames that did not answer the pending request
	ErrorsTotal   uint64
	LastActivity  time.Time
	Connected     bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the request/response surface used by the device client.
// It allows the connection to be replaced by a fake in tests.
type Connector interface {
	Request(ctx context.Context, kind CommandKind, dps DPS) (DPS, error)
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Conn implements Connector.
var _ Connector = (*Conn)(nil)

// Conn is one TCP session with one device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Requests are serialised: exactly one request is in flight at a time.
//
// A Conn is not reusable after a connection error; the session is closed
// and callers are expected to Open a new one.
type Conn struct {
	cfg   Config
	codec *Codec
	conn  net.Conn

	// mu serialises requests (single in-flight request per connection).
	mu  sync.Mutex
	seq atomic.Uint32

	closed    atomic.Bool
	closeOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	requestsTotal atomic.Uint64
	framesTx      atomic.Uint64
	framesRx      atomic.Uint64
	framesSkipped atomic.Uint64
	errorsTotal   atomic.Uint64
	lastActivity  atomic.Int64
}

// Open dials the device and prepares the session codec.
//
// Parameters:
//   - ctx: Context for cancellation of the dial
//   - cfg: Device identity and timeouts
//
// Returns:
//   - *Conn: Open session ready for requests
//   - error: ErrInvalidKey/ErrUnsupportedVersion for bad identity, ErrConnection if the dial fails
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	codec, err := NewCodec(cfg.DeviceID, cfg.LocalKey, cfg.Version)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", normaliseAddress(cfg.Address))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, cfg.Address, err)
	}

	c := &Conn{
		cfg:   cfg,
		codec: codec,
		conn:  conn,
	}
	c.lastActivity.Store(time.Now().Unix())

	return c, nil
}

// normaliseAddress appends the default port when none is given.
func normaliseAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}

// Request sends one command and waits for the frame that answers it.
//
// Parameters:
//   - ctx: Context for cancellation; its deadline caps RequestTimeout
//   - kind: KindStatus, KindSet or KindHeartbeat
//   - dps: datapoints to write (KindSet only)
//
// Returns:
//   - DPS: datapoints carried by the response (full for STATUS, possibly partial or empty for SET)
//   - error: wrapping ErrConnection or ErrProtocol
func (c *Conn) Request(ctx context.Context, kind CommandKind, dps DPS) (DPS, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, fmt.Errorf("%w: %w", ErrConnection, ErrNotConnected)
	}
	c.requestsTotal.Add(1)

	seq := c.seq.Add(1)
	msg, err := c.codec.EncodeRequest(kind, seq, dps)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(fmt.Errorf("%w: set deadline: %w", ErrConnection, err))
	}

	// Unblock pending I/O as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now()) //nolint:errcheck // best-effort interrupt
	})
	defer stop()

	if _, err := c.conn.Write(msg); err != nil {
		return nil, c.fail(c.transportError(ctx, "write", err))
	}
	c.framesTx.Add(1)

	for skipped := 0; ; skipped++ {
		f, err := ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				// Frame boundaries are lost; the stream cannot be reused.
				return nil, c.fail(err)
			}
			return nil, c.fail(c.transportError(ctx, "read", err))
		}
		c.framesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())

		if !kind.accepts(f.Command) {
			c.framesSkipped.Add(1)
			c.logDebug("skipping unrelated frame", "command", f.Command.String(), "waiting_for", kind.String())
			if skipped >= maxSkippedFrames {
				return nil, c.fail(fmt.Errorf("%w: no %s response after %d frames", ErrProtocol, kind, skipped+1))
			}
			continue
		}

		resp, err := c.codec.DecodeResponse(f)
		if err != nil {
			c.errorsTotal.Add(1)
			return nil, err
		}
		return resp, nil
	}
}

// Heartbeat sends a HEART_BEAT and waits for the echo.
func (c *Conn) Heartbeat(ctx context.Context) error {
	_, err := c.Request(ctx, KindHeartbeat, nil)
	return err
}

// transportError wraps an I/O error, preferring the context error when the
// caller cancelled.
func (c *Conn) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

// fail counts the error, closes the session and returns err unchanged.
func (c *Conn) fail(err error) error {
	c.errorsTotal.Add(1)
	c.logWarn("closing device session after error", "device_id", c.cfg.DeviceID, "error", err)
	c.Close() //nolint:errcheck // Close never fails
	return err
}

// Close closes the session. Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.conn != nil {
			c.conn.Close()
		}
	})
	return nil
}

// IsConnected returns true until the session is closed or fails.
func (c *Conn) IsConnected() bool {
	return !c.closed.Load()
}

// Stats returns current counters.
func (c *Conn) Stats() Stats {
	return Stats{
		RequestsTotal: c.requestsTotal.Load(),
		FramesTx:      c.framesTx.Load(),
		FramesRx:      c.framesRx.Load(),
		FramesSkipped: c.framesSkipped.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		LastActivity:  time.Unix(c.lastActivity.Load(), 0),
		Connected:     c.IsConnected(),
	}
}

// SetLogger sets the logger for this session.
func (c *Conn) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Conn) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Conn) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Conn) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
