// Package metrics exposes Prometheus instrumentation for device clients,
// the bridge and the HTTP API.
//
// Collectors live on a private registry so tests and multiple instances
// never collide with the global default registry.
//
//	m := metrics.New(cfg.Metrics.Namespace)
//	opts := device.Options{Metrics: m}
//	http.Handle("/metrics", m.Handler())
//
// Request outcomes are labelled ok, connection, protocol or error.
package metrics
