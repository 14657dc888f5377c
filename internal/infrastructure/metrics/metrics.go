package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/localtuya-core/internal/device"
	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "localtuya"

// Request outcome labels.
const (
	ResultOK         = "ok"
	ResultConnection = "connection"
	ResultProtocol   = "protocol"
	ResultError      = "error"
)

var _ device.Metrics = (*Metrics)(nil)

// Metrics holds every collector. It implements device.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	coalesced       prometheus.Histogram
	invalidations   *prometheus.CounterVec
	devices         *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
}

// New creates and registers the collectors. An empty namespace uses DefaultNamespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_requests_total",
			Help:      "Device request attempts by kind and result.",
		}, []string{"device_id", "kind", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_request_duration_seconds",
			Help:      "Round-trip time of device request attempts.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_retries_total",
			Help:      "Failed attempts that were retried.",
		}, []string{"device_id", "kind"}),
		coalesced: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coalesced_datapoints",
			Help:      "Datapoints carried by each coalesced SET.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cached states dropped after a failed refresh.",
		}, []string{"device_id"}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Registered devices by state (total, connected, cache_valid, pending_writes).",
		}, []string{"state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.retries,
		m.coalesced,
		m.invalidations,
		m.devices,
		m.httpRequests,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest implements device.Metrics.
func (m *Metrics) ObserveRequest(deviceID string, kind tuya.CommandKind, err error, duration time.Duration) {
	m.requests.WithLabelValues(deviceID, kind.String(), Result(err)).Inc()
	m.requestDuration.WithLabelValues(kind.String()).Observe(duration.Seconds())
}

// IncRetry implements device.Metrics.
func (m *Metrics) IncRetry(deviceID string, kind tuya.CommandKind) {
	m.retries.WithLabelValues(deviceID, kind.String()).Inc()
}

// ObserveCoalesced implements device.Metrics.
func (m *Metrics) ObserveCoalesced(_ string, datapoints int) {
	m.coalesced.Observe(float64(datapoints))
}

// IncInvalidation implements device.Metrics.
func (m *Metrics) IncInvalidation(deviceID string) {
	m.invalidations.WithLabelValues(deviceID).Inc()
}

// SetRegistryStats publishes the registry gauges.
func (m *Metrics) SetRegistryStats(s device.RegistryStats) {
	m.devices.WithLabelValues("total").Set(float64(s.TotalDevices))
	m.devices.WithLabelValues("connected").Set(float64(s.ConnectedDevices))
	m.devices.WithLabelValues("cache_valid").Set(float64(s.ValidCaches))
	m.devices.WithLabelValues("pending_writes").Set(float64(s.PendingWrites))
}

// ObserveHTTP counts one API request. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Result classifies a request error for the result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, tuya.ErrConnection):
		return ResultConnection
	case errors.Is(err, tuya.ErrProtocol):
		return ResultProtocol
	default:
		return ResultError
	}
}
