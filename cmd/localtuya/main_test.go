package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/localtuya-core/internal/infrastructure/config"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/logging"
	"github.com/nerrad567/localtuya-core/internal/infrastructure/metrics"
	"github.com/nerrad567/localtuya-core/internal/tuya"
)

const testProfile = `
id: smart_plug
name: "{device_name} plug"
primary:
  entity: switch
  properties: [power]
datapoints:
  - {id: "1", type: boolean, property: power}
`

// writeSite lays out a config file, a device list and a profile directory
// under a temp dir and returns the config path.
func writeSite(t *testing.T, dbPath string) string {
	t.Helper()
	dir := t.TempDir()

	profiles := filepath.Join(dir, "profiles")
	if err := os.Mkdir(profiles, 0o700); err != nil {
		t.Fatalf("mkdir profiles: %v", err)
	}
	writeFile(t, filepath.Join(profiles, "smart_plug.yaml"), testProfile)

	devices := filepath.Join(dir, "devices.yaml")
	writeFile(t, devices, "bridge:\n  id: test-bridge\ndevices: []\n")

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `
site:
  id: test-site
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: `+strconv.Itoa(freePort(t))+`
logging:
  level: error
  format: text
  output: stdout
profiles:
  dir: "`+profiles+`"
devices:
  config_file: "`+devices+`"
`)
	return configPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("LOCALTUYA_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("LOCALTUYA_CONFIG", writeSite(t, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestRun_MissingDeviceList(t *testing.T) {
	configPath := writeSite(t, filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("LOCALTUYA_CONFIG", configPath)
	t.Setenv("LOCALTUYA_DEVICES_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a device list")
	}
}

func TestRun_NoProfiles(t *testing.T) {
	t.Setenv("LOCALTUYA_CONFIG", writeSite(t, filepath.Join(t.TempDir(), "test.db")))
	t.Setenv("LOCALTUYA_PROFILES_DIR", t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an empty profile directory")
	}
}

// MQTT, InfluxDB and Redis are disabled, so startup needs no external services.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("LOCALTUYA_CONFIG", writeSite(t, dbPath))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("LOCALTUYA_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("LOCALTUYA_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestOfflinePublisher(t *testing.T) {
	var p offlinePublisher
	if p.IsConnected() {
		t.Error("offline publisher must report disconnected")
	}
	if err := p.Publish("localtuya/state/x", nil, 1, true); err != nil {
		t.Errorf("Publish() = %v", err)
	}
	if err := p.Subscribe("localtuya/command/+", 1, func(string, []byte) {}); err != nil {
		t.Errorf("Subscribe() = %v", err)
	}
	if err := p.Unsubscribe("localtuya/command/+"); err != nil {
		t.Errorf("Unsubscribe() = %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &config.Config{Devices: config.DevicesConfig{
		StalenessHorizon: 15000,
		OverlayTimeout:   10000,
		DebounceWindow:   250,
		RetryAttempts:    4,
		ConnectTimeout:   3000,
		RequestTimeout:   2000,
	}}
	log := logging.Default()

	opts := clientOptions(cfg, nil, nil, log)
	if opts.StalenessHorizon != 15*time.Second || opts.OverlayTimeout != 10*time.Second {
		t.Errorf("horizon/overlay = %v/%v", opts.StalenessHorizon, opts.OverlayTimeout)
	}
	if opts.DebounceWindow != 250*time.Millisecond || opts.RetryAttempts != 4 {
		t.Errorf("debounce/retries = %v/%d", opts.DebounceWindow, opts.RetryAttempts)
	}
	if opts.ConnectTimeout != 3*time.Second || opts.RequestTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v", opts.ConnectTimeout, opts.RequestTimeout)
	}
	if opts.Metrics != nil {
		t.Error("Metrics should stay nil with no sinks")
	}

	m := metrics.New("")
	opts = clientOptions(cfg, m, nil, log)
	if opts.Metrics == nil {
		t.Fatal("Metrics should be set when Prometheus is enabled")
	}
	opts.Metrics.ObserveRequest("plug-1", tuya.KindStatus, nil, 10*time.Millisecond)
	opts.Metrics.IncRetry("plug-1", tuya.KindStatus)
	opts.Metrics.ObserveCoalesced("plug-1", 2)
	opts.Metrics.IncInvalidation("plug-1")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	seen := make(map[string]bool)
	for _, f := range families {
		seen[f.GetName()] = true
	}
	for _, name := range []string{
		"localtuya_device_requests_total",
		"localtuya_device_retries_total",
		"localtuya_coalesced_datapoints",
		"localtuya_cache_invalidations_total",
	} {
		if !seen[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}
