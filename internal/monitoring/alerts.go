package monitoring

import (
	"fmt"
	"time"
)

// AlertCondition is a named predicate over the current stats snapshot. Check
// returns whether the alert fires and a human-readable message.
type AlertCondition struct {
	Name  string
	Check func(stats map[string]PerformanceStats) (bool, string)
}

// RegisterAlertCondition adds a condition. Conditions are evaluated after
// every recorded operation and on each periodic tick.
func (m *Monitor) RegisterAlertCondition(c AlertCondition) {
	if c.Name == "" || c.Check == nil {
		return
	}
	m.alertMu.Lock()
	m.alerts = append(m.alerts, c)
	m.alertMu.Unlock()
}

// FiringAlerts returns the names of the currently firing conditions.
func (m *Monitor) FiringAlerts() []string {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()

	names := make([]string, 0, len(m.firing))
	for name := range m.firing {
		names = append(names, name)
	}
	return names
}

func (m *Monitor) evaluateAlerts() {
	stats := m.AllStats()

	m.alertMu.Lock()
	conditions := make([]AlertCondition, len(m.alerts))
	copy(conditions, m.alerts)
	m.alertMu.Unlock()

	for _, c := range conditions {
		fire, msg := c.Check(stats)

		m.alertMu.Lock()
		_, wasFiring := m.firing[c.Name]
		if fire {
			m.firing[c.Name] = msg
		} else {
			delete(m.firing, c.Name)
		}
		m.alertMu.Unlock()

		if fire && !wasFiring {
			m.logger.Warn("alert firing", map[string]interface{}{
				"alert":   c.Name,
				"message": msg,
			})
			m.metrics.IncrementCounterWithLabels("alerts_fired_total", 1, map[string]string{"alert": c.Name})
		}
		if !fire && wasFiring {
			m.logger.Info("alert resolved", map[string]interface{}{"alert": c.Name})
		}
	}
}

func (m *Monitor) registerDefaultAlerts() {
	cfg := m.cfg

	m.RegisterAlertCondition(AlertCondition{
		Name: "high_error_rate",
		Check: func(stats map[string]PerformanceStats) (bool, string) {
			for op, s := range stats {
				if s.Count >= int64(cfg.MinSamples) && s.ErrorRate >= cfg.ErrorRateThreshold {
					return true, fmt.Sprintf("operation %s error rate %.0f%% over the last %s", op, s.ErrorRate*100, cfg.Window)
				}
			}
			return false, ""
		},
	})

	m.RegisterAlertCondition(AlertCondition{
		Name: "slow_operations",
		Check: func(stats map[string]PerformanceStats) (bool, string) {
			for op, s := range stats {
				if s.Count >= int64(cfg.MinSamples) && s.AvgDuration >= cfg.AvgDurationAlert {
					return true, fmt.Sprintf("operation %s average duration %s exceeds %s", op, s.AvgDuration.Round(time.Millisecond), cfg.AvgDurationAlert)
				}
			}
			return false, ""
		},
	})
}
