package tuya

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/localtuya-core/internal/device"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/localtuya-core/internal/profile"
)

// Bridge operation constants.
const (
	// commandTimeout bounds a write or forced refresh triggered over MQTT.
	commandTimeout = 15 * time.Second

	// discoverTimeout bounds profile detection for one device.
	discoverTimeout = 30 * time.Second

	// sinkTimeout bounds each history or mirror write for one state change.
	sinkTimeout = 5 * time.Second

	// setupConcurrency bounds how many devices are set up in parallel.
	setupConcurrency = 8

	// changeQueueSize is the buffer between device callbacks and the fan-out worker.
	changeQueueSize = 256

	// pruneInterval is how often state history older than the retention is removed.
	pruneInterval = time.Hour

	// defaultPollInterval is used when BridgeOptions.PollInterval is zero.
	defaultPollInterval = 10 * time.Second

	// maxLoggedCandidates limits the candidates logged when detection fails.
	maxLoggedCandidates = 3
)

// Logger is the logging surface the bridge uses.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// main.go adapts the infrastructure client to it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// HistoryStore persists state changes. Satisfied by
// *device.SQLiteStateHistoryRepository.
type HistoryStore interface {
	RecordStateChange(ctx context.Context, change device.StateChange) error
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PropertyWriter receives numeric property values. Satisfied by
// *influxdb.Client.
type PropertyWriter interface {
	WriteProperties(deviceID string, properties map[string]any, ts time.Time) int
}

// StateMirror keeps the latest state document per device. Satisfied by
// *rediscache.StateCache.
type StateMirror interface {
	Set(ctx context.Context, deviceID string, stateJSON []byte) error
	RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error)
}

// StatsRecorder receives registry totals after every poll. Satisfied by
// *metrics.Metrics.
type StatsRecorder interface {
	SetRegistryStats(stats device.RegistryStats)
}

// BridgeOptions holds everything needed to create a bridge.
type BridgeOptions struct {
	// Config is the loaded device file.
	Config *Config

	// MQTTClient publishes state and receives commands.
	MQTTClient MQTTClient

	// Registry receives one client per device. The bridge does not close it.
	Registry *device.Registry

	// Catalog resolves and detects device profiles.
	Catalog *profile.Catalog

	// ClientOptions is the template for every device client. FixedDPS is
	// taken from each device entry.
	ClientOptions device.Options

	// PollInterval is how often every client is refreshed. Default: 10 seconds.
	PollInterval time.Duration

	// HistoryRetention is how long state history is kept. Zero disables pruning.
	HistoryRetention time.Duration

	// Version is reported in health messages.
	Version string

	// Optional sinks. Nil disables each one.
	History HistoryStore
	Influx  PropertyWriter
	Mirror  StateMirror
	Stats   StatsRecorder

	Logger Logger
}

// Bridge connects the device registry to MQTT and the state sinks.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        *Config
	mqtt       MQTTClient
	topics     mqtt.Topics
	registry   *device.Registry
	catalog    *profile.Catalog
	clientOpts device.Options
	health     *HealthReporter

	pollInterval     time.Duration
	historyRetention time.Duration

	history HistoryStore
	influx  PropertyWriter
	mirror  StateMirror
	stats   StatsRecorder

	changes     chan device.StateChange
	unsubscribe func()

	// runMu guards started and every wg.Add made on behalf of a command,
	// so Stop cannot begin waiting while a command is still adding work.
	runMu   sync.Mutex
	started bool

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to set up devices.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("profile catalog is required")
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:              opts.Config,
		mqtt:             opts.MQTTClient,
		registry:         opts.Registry,
		catalog:          opts.Catalog,
		clientOpts:       opts.ClientOptions,
		pollInterval:     pollInterval,
		historyRetention: opts.HistoryRetention,
		history:          opts.History,
		influx:           opts.Influx,
		mirror:           opts.Mirror,
		stats:            opts.Stats,
		changes:          make(chan device.StateChange, changeQueueSize),
		done:             make(chan struct{}),
		ctx:              ctx,
		ctxCancel:        ctxCancel,
		logger:           opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Stats:     opts.Registry,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start sets up every configured device, subscribes to commands and starts
// the poll, prune and health loops.
//
// A device that cannot be set up (unknown profile, failed detection) is
// logged and skipped; Start only fails when the command subscription does.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.unsubscribe = b.registry.Subscribe(b.enqueue)
	b.wg.Add(1)
	go b.fanOut()

	added := b.setupDevices(ctx)
	b.pruneMirror(ctx)

	b.runMu.Lock()
	b.started = true
	b.runMu.Unlock()

	topic := b.topics.AllDeviceCommands()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.wg.Add(1)
	go b.pollLoop()

	if b.history != nil && b.historyRetention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	b.health.Start(b.ctx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", added,
		"configured", len(b.cfg.Devices))

	return nil
}

// Stop shuts the bridge down. Device clients stay in the registry; the
// caller closes it.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.runMu.Lock()
		wasStarted := b.started
		b.started = false
		b.runMu.Unlock()

		if wasStarted {
			if err := b.mqtt.Unsubscribe(b.topics.AllDeviceCommands()); err != nil {
				b.logWarn("failed to unsubscribe from commands", "error", err)
			}
		}

		close(b.done)
		b.ctxCancel()

		if b.unsubscribe != nil {
			b.unsubscribe()
		}

		b.health.Stop()
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// setupDevices creates a client for every configured device and returns
// how many were added.
func (b *Bridge) setupDevices(ctx context.Context) int {
	var added atomic.Int64

	var g errgroup.Group
	g.SetLimit(setupConcurrency)
	for _, dc := range b.cfg.Devices {
		g.Go(func() error {
			if err := b.addDevice(ctx, dc); err != nil {
				b.logError("skipping device", fmt.Errorf("%s: %w", dc.ID, err))
				return nil
			}
			added.Add(1)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return int(added.Load())
}

func (b *Bridge) addDevice(ctx context.Context, dc DeviceConfig) error {
	prof, err := b.resolveProfile(ctx, dc)
	if err != nil {
		return err
	}

	opts := b.clientOpts
	opts.FixedDPS = dc.FixedDPS

	c, err := device.New(dc.Identity, prof, opts)
	if err != nil {
		return err
	}
	if err := b.registry.Add(c); err != nil {
		c.Close() //nolint:errcheck // never registered
		return err
	}
	return nil
}

// resolveProfile returns the configured profile, or queries the device and
// picks a full catalogue match.
func (b *Bridge) resolveProfile(ctx context.Context, dc DeviceConfig) (*profile.Profile, error) {
	if dc.Profile != "" {
		return b.catalog.Get(dc.Profile)
	}

	discoverCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	dps, err := device.Discover(discoverCtx, dc.Identity, b.clientOpts)
	if err != nil {
		return nil, fmt.Errorf("detect profile: %w", err)
	}

	if prof, ok := b.catalog.BestMatch(dps); ok {
		b.logInfo("profile detected", "device_id", dc.ID, "profile", prof.ID)
		return prof, nil
	}

	candidates := b.catalog.FindCandidates(dps)
	logged := make([]string, 0, maxLoggedCandidates)
	for _, cand := range candidates[:min(len(candidates), maxLoggedCandidates)] {
		logged = append(logged, fmt.Sprintf("%s (%.0f%%, %d/%d)", cand.Profile.ID, cand.Score, cand.Matched, cand.Declared))
	}
	b.logWarn("no full profile match", "device_id", dc.ID, "datapoints", len(dps), "candidates", logged)

	return nil, ErrNoProfile
}

// pruneMirror removes mirrored state for devices no longer configured.
func (b *Bridge) pruneMirror(ctx context.Context) {
	if b.mirror == nil {
		return
	}

	ids := make([]string, 0, b.registry.Count())
	for _, c := range b.registry.List() {
		ids = append(ids, c.ID())
	}

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	removed, err := b.mirror.RemoveAllExcept(ctx, ids)
	if err != nil {
		b.logError("failed to prune state mirror", err)
		return
	}
	if len(removed) > 0 {
		b.logInfo("pruned state mirror", "removed", removed)
	}
}

// handleMQTTMessage routes a message received on a command topic.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	id := b.topics.DeviceIDFromTopic(topic)
	if id == "" {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		b.logError("failed to parse command", fmt.Errorf("%s: %w", id, err))
		return
	}

	if err := b.HandleCommand(id, cmd); err != nil {
		b.logError("command failed", fmt.Errorf("%s: %w", id, err))
	}
}

// HandleCommand applies a command to one device.
//
// Anticipated values are applied synchronously. Writes are queued on the
// client's debounced path and forced refreshes run in the background; their
// failures are logged.
//
// Returns:
//   - error: ErrNotStarted, device.ErrDeviceNotFound, or an anticipation
//     or validation error
func (b *Bridge) HandleCommand(deviceID string, cmd CommandMessage) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.started {
		return ErrNotStarted
	}

	c, err := b.registry.Get(deviceID)
	if err != nil {
		return err
	}

	b.logDebug("received command",
		"command_id", cmd.ID,
		"device_id", deviceID,
		"properties", len(cmd.Properties),
		"anticipate", len(cmd.Anticipate),
		"refresh", cmd.Refresh,
		"ping", cmd.Ping)

	var errs []error
	for name, value := range cmd.Anticipate {
		if err := c.AnticipatePropertyValue(name, value); err != nil {
			errs = append(errs, fmt.Errorf("anticipate %s: %w", name, err))
		}
	}

	if len(cmd.Properties) > 0 {
		w, err := c.SetPropertiesAsync(cmd.Properties)
		if err != nil {
			errs = append(errs, err)
		} else {
			b.wg.Add(1)
			go b.awaitWrite(c.ID(), cmd.ID, w)
		}
	}

	if cmd.Refresh {
		b.wg.Add(1)
		go b.forceRefresh(c)
	}

	if cmd.Ping {
		b.wg.Add(1)
		go b.ping(c)
	}

	return errors.Join(errs...)
}

func (b *Bridge) awaitWrite(deviceID, commandID string, w *device.Write) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := w.Wait(ctx); err != nil {
		b.logError("write failed", fmt.Errorf("%s (command %q): %w", deviceID, commandID, err))
	}
}

func (b *Bridge) forceRefresh(c *device.Client) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := c.ForceRefresh(ctx); err != nil {
		b.logError("refresh failed", fmt.Errorf("%s: %w", c.ID(), err))
	}
}

func (b *Bridge) ping(c *device.Client) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	start := time.Now()
	if err := c.Ping(ctx); err != nil {
		b.logError("ping failed", fmt.Errorf("%s: %w", c.ID(), err))
		return
	}
	b.logInfo("ping", "device_id", c.ID(), "rtt", time.Since(start))
}

// pollLoop refreshes every stale client, starting immediately.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		b.Poll(b.ctx)

		select {
		case <-b.done:
			return
		case <-ticker.C:
		}
	}
}

// Poll refreshes every client whose cache is stale and records registry
// totals.
//
// Returns:
//   - int: number of devices whose refresh failed
func (b *Bridge) Poll(ctx context.Context) int {
	failed, err := b.registry.RefreshAll(ctx)
	if err != nil && ctx.Err() == nil {
		b.logWarn("device refresh failed", "failed", failed, "error", err)
	}

	if b.stats != nil {
		b.stats.SetRegistryStats(b.registry.Stats())
	}
	return failed
}

func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(b.ctx, sinkTimeout)
			n, err := b.history.PruneHistory(ctx, b.historyRetention)
			cancel()
			if err != nil {
				b.logError("failed to prune state history", err)
			} else if n > 0 {
				b.logInfo("pruned state history", "rows", n)
			}
		}
	}
}

// enqueue is the registry subscriber. It never blocks the device client
// that produced the change.
func (b *Bridge) enqueue(change device.StateChange) {
	select {
	case b.changes <- change:
	default:
		b.logWarn("state change queue full, dropping change", "device_id", change.DeviceID, "source", change.Source)
	}
}

func (b *Bridge) fanOut() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case change := <-b.changes:
			b.publishChange(change)
		}
	}
}

// publishChange sends one change to MQTT and every configured sink.
// Anticipated values are published but not persisted, since the device
// has not reported them.
func (b *Bridge) publishChange(change device.StateChange) {
	c, err := b.registry.Get(change.DeviceID)
	if err != nil {
		return
	}

	payload, err := json.Marshal(NewStateMessage(c, change))
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.DeviceState(change.DeviceID), payload, 1, true); err != nil {
		b.logError("failed to publish state", fmt.Errorf("%s: %w", change.DeviceID, err))
	}

	ctx, cancel := context.WithTimeout(b.ctx, sinkTimeout)
	defer cancel()

	if b.mirror != nil {
		if err := b.mirror.Set(ctx, change.DeviceID, payload); err != nil {
			b.logWarn("failed to mirror state", "device_id", change.DeviceID, "error", err)
		}
	}

	if change.Source == device.SourceAnticipate {
		return
	}

	if b.history != nil {
		if err := b.history.RecordStateChange(ctx, change); err != nil {
			b.logWarn("failed to record state history", "device_id", change.DeviceID, "error", err)
		}
	}

	if b.influx != nil {
		b.influx.WriteProperties(change.DeviceID, change.Properties, change.Timestamp)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
