package tuya

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/localtuya-core/internal/device"
)

// localKeySize is the length of a device local key.
const localKeySize = 16

// Config is the device file: bridge identity plus the devices it controls.
type Config struct {
	Bridge  BridgeConfig   `yaml:"bridge"`
	Devices []DeviceConfig `yaml:"devices"`
}

// BridgeConfig contains bridge identity and reporting settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in health reports.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// DeviceConfig is one device entry.
//
//	- id: bf3a1c0d9e2f4a5b6c7d
//	  name: Hall heater
//	  address: 192.168.1.40
//	  local_key: "0123456789abcdef"
//	  profile: panel_heater
//	  fixed_dps: {"101": true}
type DeviceConfig struct {
	device.Identity `yaml:",inline"`

	// Profile is the catalogue id. Empty means detect at startup.
	Profile string `yaml:"profile"`

	// FixedDPS are raw datapoints merged into every SET sent to the device.
	FixedDPS map[string]any `yaml:"fixed_dps"`
}

// String returns a representation with the local key masked.
func (d DeviceConfig) String() string {
	key := ""
	if d.LocalKey != "" {
		key = "[REDACTED]"
	}
	return fmt.Sprintf("DeviceConfig{ID:%q, Name:%q, Address:%q, LocalKey:%s, Profile:%q}",
		d.ID, d.Name, d.Address, key, d.Profile)
}

// LoadConfig reads the device file.
//
// The loading order is:
//  1. Default values
//  2. YAML file values
//  3. Environment variables (LOCALTUYA_BRIDGE_ID)
//
// Returns:
//   - *Config: loaded and validated configuration
//   - error: if the file cannot be read, parsed or validated
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing device file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating device file: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "localtuya-bridge-01",
			HealthInterval: 30,
		},
		Devices: []DeviceConfig{},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOCALTUYA_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
}

// normalise converts YAML integers in fixed datapoints to int64, the type
// the wire codec produces.
func (c *Config) normalise() {
	for i := range c.Devices {
		for dp, v := range c.Devices[i].FixedDPS {
			switch n := v.(type) {
			case int:
				c.Devices[i].FixedDPS[dp] = int64(n)
			case uint64:
				c.Devices[i].FixedDPS[dp] = int64(n) //nolint:gosec // datapoint values fit in int64
			}
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: every problem joined with "; ", or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

func (c *Config) validateDevices() []string {
	var errs []string
	seen := make(map[string]bool)

	for i, dev := range c.Devices {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if seen[dev.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicate", i, dev.ID))
		}
		seen[dev.ID] = true

		if dev.Address == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].address is required", i))
		}
		if len(dev.LocalKey) != localKeySize {
			errs = append(errs, fmt.Sprintf("devices[%d].local_key must be %d characters", i, localKeySize))
		}
		if dev.Version != "" && dev.Version != "3.3" {
			errs = append(errs, fmt.Sprintf("devices[%d].version %q is not supported (use 3.3)", i, dev.Version))
		}

		errs = append(errs, validateFixedDPS(i, dev.FixedDPS)...)
	}

	return errs
}

func validateFixedDPS(deviceIdx int, dps map[string]any) []string {
	var errs []string
	for dp, v := range dps {
		if _, err := strconv.Atoi(dp); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d].fixed_dps key %q is not a datapoint id", deviceIdx, dp))
		}
		switch v.(type) {
		case bool, int64, float64, string:
		default:
			errs = append(errs, fmt.Sprintf("devices[%d].fixed_dps.%s has unsupported value %v", deviceIdx, dp, v))
		}
	}
	return errs
}

// GetHealthInterval returns the health interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}
