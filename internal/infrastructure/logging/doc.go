// Package logging builds the slog-backed logger shared by every component.
//
// Each entry carries service and version fields; components add their own
// with Component:
//
//	logger := logging.New(cfg.Logging, version)
//	registry.SetLogger(logger.Component("device"))
//
// Device local keys, JWT secrets and broker passwords must never be logged.
package logging
