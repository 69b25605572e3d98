package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hivecore/hivecore/internal/types"
)

// Thresholds holds the six configurable threshold values spec.md §4.7
// names: cpu_warn, cpu_crit, mem_warn, mem_crit, task_failure_rate_warn,
// task_failure_rate_crit.
type Thresholds struct {
	CPUWarn             float64
	CPUCrit             float64
	MemWarn             float64
	MemCrit             float64
	TaskFailureRateWarn float64
	TaskFailureRateCrit float64
}

// DefaultThresholds mirrors the teacher's conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarn:             0.70,
		CPUCrit:             0.90,
		MemWarn:             0.75,
		MemCrit:             0.92,
		TaskFailureRateWarn: 0.20,
		TaskFailureRateCrit: 0.50,
	}
}

// AlertChecker evaluates Thresholds against sampled metric points, and
// suppresses duplicate alerts for the same key within a cooldown window —
// the teacher's shouldAlert bookkeeping (internal/metrics/alerts.go).
type AlertChecker struct {
	mu         sync.Mutex
	thresholds Thresholds
	cooldown   time.Duration
	lastFired  map[string]time.Time
}

// NewAlertChecker builds a checker with the given thresholds and cooldown
// window (default 60s when cooldown<=0).
func NewAlertChecker(t Thresholds, cooldown time.Duration) *AlertChecker {
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &AlertChecker{
		thresholds: t,
		cooldown:   cooldown,
		lastFired:  make(map[string]time.Time),
	}
}

// Check evaluates the point and returns zero or more fresh Alerts (those
// not currently suppressed by cooldown).
func (a *AlertChecker) Check(point types.MetricPoint) []types.Alert {
	var failureRate float64
	if total := point.TasksDispatch + point.TasksFailed; total > 0 {
		failureRate = float64(point.TasksFailed) / float64(total)
	}

	candidates := []struct {
		key     string
		level   types.AlertLevel
		title   string
		desc    string
		trigger bool
	}{
		{"cpu_crit", types.AlertCritical, "CPU critical", fmt.Sprintf("cpu at %.1f%%", point.CPUPercent*100), point.CPUPercent >= a.thresholds.CPUCrit},
		{"cpu_warn", types.AlertWarning, "CPU elevated", fmt.Sprintf("cpu at %.1f%%", point.CPUPercent*100), point.CPUPercent >= a.thresholds.CPUWarn && point.CPUPercent < a.thresholds.CPUCrit},
		{"mem_crit", types.AlertCritical, "Memory critical", fmt.Sprintf("mem at %.1f%%", point.MemPercent*100), point.MemPercent >= a.thresholds.MemCrit},
		{"mem_warn", types.AlertWarning, "Memory elevated", fmt.Sprintf("mem at %.1f%%", point.MemPercent*100), point.MemPercent >= a.thresholds.MemWarn && point.MemPercent < a.thresholds.MemCrit},
		{"failure_rate_crit", types.AlertCritical, "Task failure rate critical", fmt.Sprintf("failure rate %.1f%%", failureRate*100), failureRate >= a.thresholds.TaskFailureRateCrit},
		{"failure_rate_warn", types.AlertWarning, "Task failure rate elevated", fmt.Sprintf("failure rate %.1f%%", failureRate*100), failureRate >= a.thresholds.TaskFailureRateWarn && failureRate < a.thresholds.TaskFailureRateCrit},
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	var fired []types.Alert
	for _, c := range candidates {
		if !c.trigger {
			continue
		}
		if last, ok := a.lastFired[c.key]; ok && now.Sub(last) < a.cooldown {
			continue
		}
		a.lastFired[c.key] = now
		fired = append(fired, types.Alert{
			ID:          uuid.New().String(),
			Level:       c.level,
			Title:       c.title,
			Description: c.desc,
			Timestamp:   now,
		})
	}
	return fired
}
