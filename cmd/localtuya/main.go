// localtuya-core - local control for Tuya-protocol devices.
//
// This is the main entry point. It loads the device list and profile
// catalogue, starts one cached client per device, and exposes them over
// MQTT and an HTTP/WebSocket API. State history is kept in SQLite;
// InfluxDB and Redis are optional sinks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/localtuya-core/internal/api"
	tuyabridge "github.com/nerrad567/localtuya-core/internal/bridges/tuya"
	"github.com/nerrad567/localtuya-core/internal/device"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/config"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/database"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/logging"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/metrics"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/rediscache"
	"github.com/nerrad567/localtuya-core/internal/profile"
	"github.com/nerrad567/localtuya-core/internal/tuya"
	"github.com/nerrad567/localtuya-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting localtuya-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	history := device.NewSQLiteStateHistoryRepository(db.DB)
	log.Info("database ready", "path", cfg.Database.Path)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	catalog := profile.NewCatalog()
	catalog.SetLogger(log.Component("profile"))
	// Invalid documents are skipped; devices needing them fail individually.
	if _, loadErr := catalog.LoadDir(cfg.Profiles.Dir); loadErr != nil {
		log.Warn("some profiles failed to load", "dir", cfg.Profiles.Dir, "error", loadErr)
	}
	if catalog.Len() == 0 {
		return fmt.Errorf("no device profiles found in %s", cfg.Profiles.Dir)
	}

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("device"))
	defer func() {
		log.Info("closing device clients")
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing device clients", "error", closeErr)
		}
	}()

	publisher, mqttClient, err := connectMQTT(cfg.MQTT, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	bridgeOpts := tuyabridge.BridgeOptions{
		MQTTClient:       publisher,
		Registry:         registry,
		Catalog:          catalog,
		PollInterval:     cfg.GetPollInterval(),
		HistoryRetention: cfg.GetHistoryRetention(),
		Version:          version,
		History:          history,
		Logger:           log.Component("bridge"),
	}
	if m != nil {
		bridgeOpts.Stats = m
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		bridgeOpts.Influx = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var stateCache *rediscache.StateCache
	if cfg.Redis.Enabled {
		stateCache, err = rediscache.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := stateCache.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		bridgeOpts.Mirror = stateCache
		log.Info("Redis state mirror connected", "addr", cfg.Redis.Addr)
	} else {
		log.Info("Redis state mirror disabled")
	}

	bridgeOpts.ClientOptions = clientOptions(cfg, m, influxClient, log)

	bridgeOpts.Config, err = tuyabridge.LoadConfig(cfg.Devices.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading device list: %w", err)
	}
	log.Info("device list loaded", "path", cfg.Devices.ConfigFile, "devices", len(bridgeOpts.Config.Devices))

	bridge, err := tuyabridge.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Registry: registry,
		Catalog:  catalog,
		History:  history,
		Metrics:  m,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, stateCache); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", registry.Count(),
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	// Deferred closes run in reverse: API, bridge, Redis, InfluxDB, MQTT,
	// device clients, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns LOCALTUYA_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("LOCALTUYA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// clientOptions builds the template for every device client.
func clientOptions(cfg *config.Config, m *metrics.Metrics, influxClient *influxdb.Client, log *logging.Logger) device.Options {
	opts := device.Options{
		StalenessHorizon: cfg.GetStalenessHorizon(),
		OverlayTimeout:   cfg.GetOverlayTimeout(),
		DebounceWindow:   cfg.GetDebounceWindow(),
		RetryAttempts:    cfg.Devices.RetryAttempts,
		ConnectTimeout:   cfg.GetConnectTimeout(),
		RequestTimeout:   cfg.GetRequestTimeout(),
		Logger:           log.Component("device"),
	}
	if m != nil || influxClient != nil {
		opts.Metrics = &clientMetrics{prom: m, influx: influxClient}
	}
	return opts
}

// clientMetrics feeds device client instrumentation to Prometheus and,
// for request round trips, to InfluxDB. Either sink may be nil.
type clientMetrics struct {
	prom   *metrics.Metrics
	influx *influxdb.Client
}

func (c *clientMetrics) ObserveRequest(deviceID string, kind tuya.CommandKind, err error, d time.Duration) {
	if c.prom != nil {
		c.prom.ObserveRequest(deviceID, kind, err, d)
	}
	if c.influx != nil {
		c.influx.WriteRequest(deviceID, kind.String(), d, err != nil)
	}
}

func (c *clientMetrics) IncRetry(deviceID string, kind tuya.CommandKind) {
	if c.prom != nil {
		c.prom.IncRetry(deviceID, kind)
	}
}

func (c *clientMetrics) ObserveCoalesced(deviceID string, datapoints int) {
	if c.prom != nil {
		c.prom.ObserveCoalesced(deviceID, datapoints)
	}
}

func (c *clientMetrics) IncInvalidation(deviceID string) {
	if c.prom != nil {
		c.prom.IncInvalidation(deviceID)
	}
}

// connectMQTT connects to the broker when enabled. With MQTT disabled the
// bridge gets an offline publisher and devices are served over the API only.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (tuyabridge.MQTTClient, *mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled, devices available over the API only")
		return offlinePublisher{}, nil, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return &mqttBridgeAdapter{client: client}, client, nil
}

// healthCheck verifies every enabled infrastructure connection.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, stateCache *rediscache.StateCache) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if stateCache != nil {
		if err := stateCache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface, whose handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// offlinePublisher stands in for MQTT when it is disabled. It reports
// itself disconnected so bridge health reads degraded.
type offlinePublisher struct{}

func (offlinePublisher) Publish(string, []byte, byte, bool) error           { return nil }
func (offlinePublisher) Subscribe(string, byte, func(string, []byte)) error { return nil }
func (offlinePublisher) Unsubscribe(string) error                           { return nil }
func (offlinePublisher) IsConnected() bool                                  { return false }
