package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsClient is the metrics recording interface used across the service.
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordDuration(name string, d time.Duration, labels map[string]string)
	Close() error
}

// PrometheusMetrics implements MetricsClient on top of the default
// prometheus registry. Collectors are registered lazily on first use; the
// label set of a metric is fixed by its first recording.
type PrometheusMetrics struct {
	namespace string
	subsystem string

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a metrics client publishing under
// namespace_subsystem_*.
func NewPrometheusMetrics(namespace, subsystem string) *PrometheusMetrics {
	return &PrometheusMetrics{
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// IncrementCounter increments a label-less counter.
func (m *PrometheusMetrics) IncrementCounter(name string, value float64) {
	m.IncrementCounterWithLabels(name, value, nil)
}

// IncrementCounterWithLabels adds value to the counter with the given labels.
func (m *PrometheusMetrics) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	m.counter(name, labelNames(labels)).With(prometheus.Labels(labels)).Add(value)
}

// RecordGauge sets a gauge.
func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.gauge(name, labelNames(labels)).With(prometheus.Labels(labels)).Set(value)
}

// RecordHistogram observes a histogram value.
func (m *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.histogram(name, labelNames(labels)).With(prometheus.Labels(labels)).Observe(value)
}

// RecordDuration observes a duration in seconds.
func (m *PrometheusMetrics) RecordDuration(name string, d time.Duration, labels map[string]string) {
	m.RecordHistogram(name, d.Seconds(), labels)
}

// Close implements MetricsClient. The default registry needs no teardown.
func (m *PrometheusMetrics) Close() error { return nil }

func (m *PrometheusMetrics) counter(name string, names []string) *prometheus.CounterVec {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      "Counter " + name,
	}, names)
	m.counters[name] = c
	return c
}

func (m *PrometheusMetrics) gauge(name string, names []string) *prometheus.GaugeVec {
	m.mu.RLock()
	g, ok := m.gauges[name]
	m.mu.RUnlock()
	if ok {
		return g
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      "Gauge " + name,
	}, names)
	m.gauges[name] = g
	return g
}

func (m *PrometheusMetrics) histogram(name string, names []string) *prometheus.HistogramVec {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      "Histogram " + name,
		Buckets:   prometheus.DefBuckets,
	}, names)
	m.histograms[name] = h
	return h
}

func labelNames(labels map[string]string) []string {
	if len(labels) == 0 {
		return []string{}
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NopMetrics discards all recordings.
type NopMetrics struct{}

// NewNopMetrics returns a metrics client that does nothing, for tests.
func NewNopMetrics() MetricsClient { return &NopMetrics{} }

func (m *NopMetrics) IncrementCounter(name string, value float64) {}
func (m *NopMetrics) IncrementCounterWithLabels(name string, value float64, l map[string]string) {
}
func (m *NopMetrics) RecordGauge(name string, value float64, labels map[string]string)      {}
func (m *NopMetrics) RecordHistogram(name string, value float64, labels map[string]string)  {}
func (m *NopMetrics) RecordDuration(name string, d time.Duration, labels map[string]string) {}
func (m *NopMetrics) Close() error                                                          { return nil }
