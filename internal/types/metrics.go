package types

import "time"

// AgentSubmetric is the per-agent contribution folded into a MetricPoint.
type AgentSubmetric struct {
	TasksCompleted int64   `json:"tasks_completed"`
	TasksFailed    int64   `json:"tasks_failed"`
	Energy         float64 `json:"energy"`
}

// MetricPoint is one sample in the metrics ring buffer (spec.md §4.7).
type MetricPoint struct {
	Timestamp     time.Time                 `json:"timestamp"`
	CPUPercent    float64                   `json:"cpu_percent"`
	MemPercent    float64                   `json:"mem_percent"`
	NetworkBytes  uint64                    `json:"network_bytes"`
	DiskBytes     uint64                    `json:"disk_bytes"`
	AgentMetrics  map[string]AgentSubmetric `json:"agent_metrics"`
	TasksDispatch int64                     `json:"tasks_dispatched"`
	TasksFailed   int64                     `json:"tasks_failed"`
}

// AlertLevel is the severity tag carried by an Alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is ephemeral: delivered on the event bus, short-retained.
type Alert struct {
	ID          string     `json:"id"`
	Level       AlertLevel `json:"level"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
}

// TrendDirection is the comparison result between the two halves of a
// metrics window (spec.md §4.7).
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Trend bundles a computed direction with the means it was derived from.
type Trend struct {
	Direction  TrendDirection `json:"direction"`
	FirstHalf  float64        `json:"first_half_mean"`
	SecondHalf float64        `json:"second_half_mean"`
}
