package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
devices:
  config_file: "/etc/localtuya/devices.yaml"
  staleness_horizon: 20000
  overlay_timeout: 8000
  debounce_window: 250
  retry_attempts: 5
  poll_interval: 5000
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.Devices.ConfigFile != "/etc/localtuya/devices.yaml" {
		t.Errorf("Devices.ConfigFile = %q", cfg.Devices.ConfigFile)
	}
	if got := cfg.GetStalenessHorizon(); got != 20*time.Second {
		t.Errorf("GetStalenessHorizon() = %v, want 20s", got)
	}
	if got := cfg.GetOverlayTimeout(); got != 8*time.Second {
		t.Errorf("GetOverlayTimeout() = %v, want 8s", got)
	}
	if got := cfg.GetDebounceWindow(); got != 250*time.Millisecond {
		t.Errorf("GetDebounceWindow() = %v, want 250ms", got)
	}
	if cfg.Devices.RetryAttempts != 5 {
		t.Errorf("Devices.RetryAttempts = %d, want 5", cfg.Devices.RetryAttempts)
	}
	// Unset values keep their defaults.
	if got := cfg.GetRequestTimeout(); got != 5*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want default 5s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
devices:
  staleness_horizon: 10000
  overlay_timeout: 10000
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id is required", "overlay_timeout must be shorter"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "valid JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = validJWTSecret }},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "jwt.secret"},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, wantErr: "redis.addr"},
		{name: "influxdb without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "overlay equals staleness", mutate: func(c *Config) {
			c.Devices.OverlayTimeout = c.Devices.StalenessHorizon
		}, wantErr: "overlay_timeout must be shorter"},
		{name: "zero retries", mutate: func(c *Config) { c.Devices.RetryAttempts = 0 }, wantErr: "retry_attempts"},
		{name: "poll slower than staleness", mutate: func(c *Config) {
			c.Devices.PollInterval = c.Devices.StalenessHorizon
		}, wantErr: "poll_interval"},
		{name: "negative debounce", mutate: func(c *Config) { c.Devices.DebounceWindow = -1 }, wantErr: "debounce_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{HistoryRetention: 48},
		Devices:  DevicesConfig{PollInterval: 2500, ConnectTimeout: 1000},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetPollInterval(); got != 2500*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 2.5s", got)
	}
	if got := cfg.GetConnectTimeout(); got != time.Second {
		t.Errorf("GetConnectTimeout() = %v, want 1s", got)
	}
	if got := cfg.GetHistoryRetention(); got != 48*time.Hour {
		t.Errorf("GetHistoryRetention() = %v, want 48h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LOCALTUYA_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LOCALTUYA_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LOCALTUYA_MQTT_USERNAME", "testuser")
	t.Setenv("LOCALTUYA_MQTT_PASSWORD", "testpass")
	t.Setenv("LOCALTUYA_API_HOST", "192.168.1.1")
	t.Setenv("LOCALTUYA_API_PORT", "9090")
	t.Setenv("LOCALTUYA_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("LOCALTUYA_REDIS_ADDR", "redis:6379")
	t.Setenv("LOCALTUYA_DEVICES_CONFIG_FILE", "/data/devices.yaml")
	t.Setenv("LOCALTUYA_PROFILES_DIR", "/data/profiles")
	t.Setenv("LOCALTUYA_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Redis.Addr", cfg.Redis.Addr, "redis:6379"},
		{"Devices.ConfigFile", cfg.Devices.ConfigFile, "/data/devices.yaml"},
		{"Profiles.Dir", cfg.Profiles.Dir, "/data/profiles"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("LOCALTUYA_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.GetStalenessHorizon() != 15*time.Second || cfg.GetOverlayTimeout() != 10*time.Second {
		t.Errorf("defaultConfig staleness/overlay = %v/%v, want 15s/10s",
			cfg.GetStalenessHorizon(), cfg.GetOverlayTimeout())
	}
}
