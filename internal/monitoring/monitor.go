// Package monitoring keeps a time-bounded in-memory window of operation
// records, serves per-operation performance statistics, evaluates alert
// conditions over them, and derives overall service health. Records are
// mirrored into prometheus through the shared metrics client.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/Leozerbib/gile-back-sub001/internal/observability"
	"github.com/Leozerbib/gile-back-sub001/internal/resilience"
)

// Config bounds the record window and sets the default alert thresholds.
type Config struct {
	// Window is how far back records are kept and counted.
	Window time.Duration
	// MaxRecords caps memory; the oldest records are dropped beyond it.
	MaxRecords int
	// ErrorRateThreshold is the per-op error rate that fires the default
	// alert and degrades service health.
	ErrorRateThreshold float64
	// AvgDurationAlert fires the default slowness alert per op.
	AvgDurationAlert time.Duration
	// MinSamples suppresses alerts until an op has this many records.
	MinSamples int
	// EvalInterval drives the periodic trim and alert evaluation loop.
	EvalInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = 10000
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 0.25
	}
	if c.AvgDurationAlert <= 0 {
		c.AvgDurationAlert = 10 * time.Second
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.EvalInterval <= 0 {
		c.EvalInterval = 30 * time.Second
	}
}

// OperationRecord is one completed operation inside the window.
type OperationRecord struct {
	Op        string
	Duration  time.Duration
	Success   bool
	Timestamp time.Time
	Metadata  map[string]string
}

// PerformanceStats summarizes one operation over the window.
type PerformanceStats struct {
	Op            string        `json:"op"`
	Count         int64         `json:"count"`
	SuccessCount  int64         `json:"success_count"`
	ErrorCount    int64         `json:"error_count"`
	ErrorRate     float64       `json:"error_rate"`
	AvgDuration   time.Duration `json:"avg_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	OpsPerMinute  float64       `json:"ops_per_minute"`
	LastOperation time.Time     `json:"last_operation"`
}

type opAggregate struct {
	count        int64
	successCount int64
	errorCount   int64
	total        time.Duration
	min          time.Duration
	max          time.Duration
	last         time.Time
}

// Monitor records operations and answers stats, alert, and health queries.
// All methods are safe for concurrent use.
type Monitor struct {
	cfg     Config
	clock   resilience.Clock
	logger  observability.Logger
	metrics observability.MetricsClient

	mu         sync.Mutex
	records    []OperationRecord
	aggregates map[string]*opAggregate

	alertMu sync.Mutex
	alerts  []AlertCondition
	firing  map[string]string // name -> message while firing

	compMu     sync.RWMutex
	components map[string]ComponentChecker
}

// NewMonitor creates a monitor with the default alert conditions
// registered. A nil clock means the system clock.
func NewMonitor(cfg Config, logger observability.Logger, metrics observability.MetricsClient, clock resilience.Clock) *Monitor {
	cfg.applyDefaults()
	if clock == nil {
		clock = resilience.SystemClock()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}

	m := &Monitor{
		cfg:        cfg,
		clock:      clock,
		logger:     logger.WithPrefix("monitor"),
		metrics:    metrics,
		aggregates: make(map[string]*opAggregate),
		firing:     make(map[string]string),
		components: make(map[string]ComponentChecker),
	}
	m.registerDefaultAlerts()
	return m
}

// RecordOperation adds one completed operation to the window, mirrors it to
// prometheus, and evaluates alert conditions.
func (m *Monitor) RecordOperation(op string, d time.Duration, success bool, metadata map[string]string) {
	now := m.clock.Now()

	m.mu.Lock()
	m.trimLocked(now)
	m.records = append(m.records, OperationRecord{
		Op:        op,
		Duration:  d,
		Success:   success,
		Timestamp: now,
		Metadata:  metadata,
	})
	if len(m.records) > m.cfg.MaxRecords {
		m.records = m.records[len(m.records)-m.cfg.MaxRecords:]
		m.rebuildLocked()
	} else {
		m.applyLocked(op, d, success, now)
	}
	m.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	m.metrics.IncrementCounterWithLabels("operations_total", 1, map[string]string{"op": op, "status": status})
	m.metrics.RecordDuration("operation_duration_seconds", d, map[string]string{"op": op})

	m.evaluateAlerts()
}

// GetPerformanceStats returns the window stats for one operation. Unknown
// operations read as zero values.
func (m *Monitor) GetPerformanceStats(op string) PerformanceStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.trimLocked(now)
	return m.statsLocked(op, now)
}

// AllStats snapshots every operation seen inside the window.
func (m *Monitor) AllStats() map[string]PerformanceStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.trimLocked(now)

	perMinute := m.trailingCountsLocked(now)
	out := make(map[string]PerformanceStats, len(m.aggregates))
	for op, agg := range m.aggregates {
		s := statsFromAggregate(op, agg)
		s.OpsPerMinute = float64(perMinute[op])
		out[op] = s
	}
	return out
}

// Run trims the window and evaluates alerts periodically until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.trimLocked(m.clock.Now())
			m.mu.Unlock()
			m.evaluateAlerts()
		}
	}
}

func (m *Monitor) statsLocked(op string, now time.Time) PerformanceStats {
	agg, ok := m.aggregates[op]
	if !ok {
		return PerformanceStats{Op: op}
	}
	s := statsFromAggregate(op, agg)
	s.OpsPerMinute = float64(m.trailingCountsLocked(now)[op])
	return s
}

func statsFromAggregate(op string, agg *opAggregate) PerformanceStats {
	s := PerformanceStats{
		Op:            op,
		Count:         agg.count,
		SuccessCount:  agg.successCount,
		ErrorCount:    agg.errorCount,
		MinDuration:   agg.min,
		MaxDuration:   agg.max,
		LastOperation: agg.last,
	}
	if agg.count > 0 {
		s.ErrorRate = float64(agg.errorCount) / float64(agg.count)
		s.AvgDuration = agg.total / time.Duration(agg.count)
	}
	return s
}

// trailingCountsLocked counts records per op in the trailing 60 seconds.
// Records are time ordered, so the scan walks back from the tail.
func (m *Monitor) trailingCountsLocked(now time.Time) map[string]int {
	cutoff := now.Add(-time.Minute)
	counts := make(map[string]int)
	for i := len(m.records) - 1; i >= 0; i-- {
		if !m.records[i].Timestamp.After(cutoff) {
			break
		}
		counts[m.records[i].Op]++
	}
	return counts
}

func (m *Monitor) applyLocked(op string, d time.Duration, success bool, now time.Time) {
	agg, ok := m.aggregates[op]
	if !ok {
		agg = &opAggregate{min: d, max: d}
		m.aggregates[op] = agg
	}
	agg.count++
	if success {
		agg.successCount++
	} else {
		agg.errorCount++
	}
	agg.total += d
	if d < agg.min {
		agg.min = d
	}
	if d > agg.max {
		agg.max = d
	}
	agg.last = now
}

func (m *Monitor) trimLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.Window)
	i := 0
	for i < len(m.records) && !m.records[i].Timestamp.After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	m.records = append(m.records[:0], m.records[i:]...)
	m.rebuildLocked()
}

// rebuildLocked recomputes every aggregate from the surviving records.
func (m *Monitor) rebuildLocked() {
	m.aggregates = make(map[string]*opAggregate, len(m.aggregates))
	for _, r := range m.records {
		m.applyLocked(r.Op, r.Duration, r.Success, r.Timestamp)
	}
}
