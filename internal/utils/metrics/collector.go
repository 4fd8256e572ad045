// internal/utils/metrics/collector.go
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType names a metric family held by the collector
type MetricType string

const (
	RefreshCounterType   MetricType = "refresh_counter"
	RefreshDurationType  MetricType = "refresh_duration"
	ProbeCounterType     MetricType = "probe_counter"
	StreamCommandType    MetricType = "stream_commands"
	UpstreamLatencyType  MetricType = "upstream_latency"
	ConnectionStatusType MetricType = "connection_status"
)

const namespace = "dashsync"

// Collector owns the dashboard's metric families. Each collector registers
// into its own registerer so tests can build as many as they like.
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	probeTotal      *prometheus.CounterVec
	streamCommands  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	connection      *prometheus.GaugeVec
}

// NewCollector creates a collector backed by a fresh registry
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	c.refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Completed portfolio/trade refresh cycles by result",
		},
		[]string{"result"},
	)
	c.refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
	c.probeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_total",
			Help:      "Connection probes by result",
		},
		[]string{"result"},
	)
	c.streamCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_commands_total",
			Help:      "Streaming start/stop commands by result",
		},
		[]string{"command", "result"},
	)
	c.upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Upstream HTTP request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"endpoint", "result"},
	)
	c.connection = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current market-data connection status, 0 otherwise",
		},
		[]string{"status"},
	)

	metricsMap := map[MetricType]prometheus.Collector{
		RefreshCounterType:   c.refreshTotal,
		RefreshDurationType:  c.refreshDuration,
		ProbeCounterType:     c.probeTotal,
		StreamCommandType:    c.streamCommands,
		UpstreamLatencyType:  c.upstreamLatency,
		ConnectionStatusType: c.connection,
	}
	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
}

// Registry exposes the registry for the promhttp handler
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Reset clears all vector metrics (useful in tests)
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRefresh records one completed refresh cycle
func (c *Collector) RecordRefresh(outcome string, duration time.Duration) {
	c.refreshTotal.WithLabelValues(outcome).Inc()
	c.refreshDuration.Observe(duration.Seconds())
}

// RecordProbe records a connection probe and flips the status gauge
func (c *Collector) RecordProbe(status string, ok bool) {
	c.probeTotal.WithLabelValues(result(ok)).Inc()
	c.connection.Reset()
	c.connection.WithLabelValues(status).Set(1)
}

// RecordStreamCommand records a start/stop command
func (c *Collector) RecordStreamCommand(command string, ok bool) {
	c.streamCommands.WithLabelValues(command, result(ok)).Inc()
}

// ObserveRequest records the latency of a single upstream request
func (c *Collector) ObserveRequest(endpoint string, duration time.Duration, err error) {
	c.upstreamLatency.WithLabelValues(endpoint, result(err == nil)).Observe(duration.Seconds())
}
