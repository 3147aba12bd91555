package monitoring

import (
	"context"
	"time"
)

// Service status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Component status values.
const (
	ComponentUp       = "up"
	ComponentDegraded = "degraded"
	ComponentDown     = "down"
)

// hardErrorRate is the overall error rate at which the service reports
// unhealthy regardless of alert state.
const hardErrorRate = 0.5

// componentCheckTimeout bounds each component probe during a health read.
const componentCheckTimeout = 2 * time.Second

// ComponentHealth is one dependency's probe result.
type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ComponentChecker probes one dependency. Checkers must respect ctx.
type ComponentChecker func(ctx context.Context) ComponentHealth

// ServiceHealth is the aggregate health report served by the gateway.
type ServiceHealth struct {
	Status       string                      `json:"status"`
	Components   map[string]ComponentHealth  `json:"components,omitempty"`
	Stats        map[string]PerformanceStats `json:"stats,omitempty"`
	FiringAlerts []string                    `json:"firing_alerts,omitempty"`
	Window       string                      `json:"window"`
}

// RegisterComponent adds a dependency probe evaluated on every health read.
func (m *Monitor) RegisterComponent(name string, check ComponentChecker) {
	if name == "" || check == nil {
		return
	}
	m.compMu.Lock()
	m.components[name] = check
	m.compMu.Unlock()
}

// GetServiceHealthMetrics probes all registered components and folds them
// together with window stats and firing alerts into one status:
// unhealthy when a component is down or the overall error rate is extreme,
// degraded when an alert fires or a component is degraded, healthy otherwise.
func (m *Monitor) GetServiceHealthMetrics() ServiceHealth {
	stats := m.AllStats()
	firing := m.FiringAlerts()

	m.compMu.RLock()
	checkers := make(map[string]ComponentChecker, len(m.components))
	for name, check := range m.components {
		checkers[name] = check
	}
	m.compMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), componentCheckTimeout)
	defer cancel()

	components := make(map[string]ComponentHealth, len(checkers))
	for name, check := range checkers {
		components[name] = check(ctx)
	}

	status := StatusHealthy
	for _, c := range components {
		if c.Status == ComponentDown {
			status = StatusUnhealthy
		}
		if c.Status == ComponentDegraded && status == StatusHealthy {
			status = StatusDegraded
		}
	}
	rate, samples := overallErrorRate(stats)
	if status != StatusUnhealthy && samples >= int64(m.cfg.MinSamples) && rate >= hardErrorRate {
		status = StatusUnhealthy
	}
	if status == StatusHealthy && len(firing) > 0 {
		status = StatusDegraded
	}

	return ServiceHealth{
		Status:       status,
		Components:   components,
		Stats:        stats,
		FiringAlerts: firing,
		Window:       m.cfg.Window.String(),
	}
}

func overallErrorRate(stats map[string]PerformanceStats) (float64, int64) {
	var count, errs int64
	for _, s := range stats {
		count += s.Count
		errs += s.ErrorCount
	}
	if count == 0 {
		return 0, 0
	}
	return float64(errs) / float64(count), count
}
