package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for localtuya-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// SiteConfig contains installation-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long state history rows are kept (hours). 0 keeps everything.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains settings for the Redis state mirror.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`

	// TTL is how long a mirrored state survives without updates (seconds). 0 means no expiry.
	TTL int `yaml:"ttl"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty secret disables bearer-token authentication.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// ProfilesConfig locates device profile documents.
type ProfilesConfig struct {
	// Dir is scanned for *.yaml profile documents at startup.
	Dir string `yaml:"dir"`
}

// DevicesConfig contains device client tuning and the device list location.
// Durations are in milliseconds.
type DevicesConfig struct {
	// ConfigFile is the path to the device list (ids, addresses, local keys).
	ConfigFile string `yaml:"config_file"`

	// StalenessHorizon bounds how old a cached datapoint may be and still be read.
	StalenessHorizon int `yaml:"staleness_horizon"`

	// OverlayTimeout bounds how long an unconfirmed write stays visible.
	// Must be shorter than StalenessHorizon.
	OverlayTimeout int `yaml:"overlay_timeout"`

	// DebounceWindow is the quiet period before coalesced writes are sent.
	DebounceWindow int `yaml:"debounce_window"`

	// RetryAttempts is the number of attempts per request.
	RetryAttempts int `yaml:"retry_attempts"`

	ConnectTimeout int `yaml:"connect_timeout"`
	RequestTimeout int `yaml:"request_timeout"`

	// PollInterval is how often every device is refreshed.
	PollInterval int `yaml:"poll_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LOCALTUYA_SECTION_KEY
// For example: LOCALTUYA_DATABASE_PATH, LOCALTUYA_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "localtuya",
		},
		Database: DatabaseConfig{
			Path:             "./data/localtuya.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 24 * 7,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "localtuya-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "localtuya",
			TTL:       300,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "localtuya",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{Issuer: "localtuya-core"},
		},
		Profiles: ProfilesConfig{
			Dir: "./profiles",
		},
		Devices: DevicesConfig{
			ConfigFile:       "./configs/devices.yaml",
			StalenessHorizon: 15000,
			OverlayTimeout:   10000,
			DebounceWindow:   100,
			RetryAttempts:    3,
			ConnectTimeout:   5000,
			RequestTimeout:   5000,
			PollInterval:     10000,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LOCALTUYA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LOCALTUYA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LOCALTUYA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LOCALTUYA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LOCALTUYA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LOCALTUYA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LOCALTUYA_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("LOCALTUYA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Redis
	if v := os.Getenv("LOCALTUYA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LOCALTUYA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Devices
	if v := os.Getenv("LOCALTUYA_DEVICES_CONFIG_FILE"); v != "" {
		cfg.Devices.ConfigFile = v
	}
	if v := os.Getenv("LOCALTUYA_PROFILES_DIR"); v != "" {
		cfg.Profiles.Dir = v
	}

	// Security
	if v := os.Getenv("LOCALTUYA_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Devices.validate()...)

	// An empty secret disables authentication; a short one is rejected.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DevicesConfig) validate() []string {
	var errs []string

	if d.StalenessHorizon <= 0 {
		errs = append(errs, "devices.staleness_horizon must be positive")
	}
	if d.OverlayTimeout <= 0 {
		errs = append(errs, "devices.overlay_timeout must be positive")
	}
	if d.StalenessHorizon > 0 && d.OverlayTimeout >= d.StalenessHorizon {
		errs = append(errs, "devices.overlay_timeout must be shorter than devices.staleness_horizon")
	}
	if d.DebounceWindow < 0 {
		errs = append(errs, "devices.debounce_window must not be negative")
	}
	if d.RetryAttempts < 1 {
		errs = append(errs, "devices.retry_attempts must be at least 1")
	}
	if d.PollInterval <= 0 {
		errs = append(errs, "devices.poll_interval must be positive")
	} else if d.StalenessHorizon > 0 && d.PollInterval >= d.StalenessHorizon {
		errs = append(errs, "devices.poll_interval must be shorter than devices.staleness_horizon")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetStalenessHorizon returns the cache staleness horizon as a Duration.
func (c *Config) GetStalenessHorizon() time.Duration {
	return time.Duration(c.Devices.StalenessHorizon) * time.Millisecond
}

// GetOverlayTimeout returns the pending-write timeout as a Duration.
func (c *Config) GetOverlayTimeout() time.Duration {
	return time.Duration(c.Devices.OverlayTimeout) * time.Millisecond
}

// GetDebounceWindow returns the write debounce window as a Duration.
func (c *Config) GetDebounceWindow() time.Duration {
	return time.Duration(c.Devices.DebounceWindow) * time.Millisecond
}

// GetConnectTimeout returns the device dial timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Devices.ConnectTimeout) * time.Millisecond
}

// GetRequestTimeout returns the device round-trip timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Devices.RequestTimeout) * time.Millisecond
}

// GetPollInterval returns the refresh interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Devices.PollInterval) * time.Millisecond
}

// GetHistoryRetention returns the state history retention as a Duration.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetention) * time.Hour
}
