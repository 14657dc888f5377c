// Package config handles loading and validating localtuya-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, the JWT secret) should be set via
//     environment variables
//   - Device local keys live in the separate device file, which should have
//     restricted permissions (0600)
//
// Device tuning defaults:
//   - staleness_horizon 15s, overlay_timeout 10s (must stay shorter)
//   - debounce_window 100ms, retry_attempts 3, poll_interval 10s
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetStalenessHorizon())
package config
