// Package metrics implements the fixed-length ring buffer of metric
// points, threshold-based alerting with a cooldown, and trend-direction
// computation described by spec.md §4.7.
//
// Grounded on the teacher's internal/metrics/collector.go (slice-backed
// history, per-entity snapshot-on-sample) and internal/metrics/alerts.go
// (threshold checks plus a shouldAlert cooldown map), generalized from
// per-CLI-agent token/test counters to the spec's CPU/mem/network/disk
// and task-failure-rate fields.
package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

// ResourceProvider supplies the system resource counters sampled on each
// tick. It is the pluggable collaborator spec.md §9 describes.
type ResourceProvider interface {
	Sample() types.ResourceSnapshot
}

// AgentCounters is what the Agent Manager contributes per tick.
type AgentCounters struct {
	Agents map[string]types.AgentSubmetric
	TasksDispatched int64
	TasksFailed     int64
}

// AgentCounterProvider supplies the Agent-Manager-derived half of a
// metric point.
type AgentCounterProvider interface {
	SampleAgentCounters() AgentCounters
}

const defaultCapacity = 1000

// Collector holds the ring buffer and drives sampling.
type Collector struct {
	mu       sync.RWMutex
	points   []types.MetricPoint
	capacity int

	resources ResourceProvider
	agents    AgentCounterProvider
}

// New creates a Collector with the given ring-buffer length. capacity<=0
// uses the spec default of 1000.
func New(resources ResourceProvider, agents AgentCounterProvider, capacity int) *Collector {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Collector{
		points:    make([]types.MetricPoint, 0, capacity),
		capacity:  capacity,
		resources: resources,
		agents:    agents,
	}
}

// Sample takes one tick: pull resource counters and agent counters, push a
// new point, evicting the oldest if at capacity.
func (c *Collector) Sample() types.MetricPoint {
	res := c.resources.Sample()
	ac := c.agents.SampleAgentCounters()

	point := types.MetricPoint{
		Timestamp:     time.Now(),
		CPUPercent:    res.CPUPercent,
		MemPercent:    res.MemPercent,
		NetworkBytes:  res.NetworkBytes,
		DiskBytes:     res.DiskBytes,
		AgentMetrics:  ac.Agents,
		TasksDispatch: ac.TasksDispatched,
		TasksFailed:   ac.TasksFailed,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.points) >= c.capacity {
		copy(c.points, c.points[1:])
		c.points = c.points[:len(c.points)-1]
	}
	c.points = append(c.points, point)
	return point
}

// Latest returns the most recent point, or the zero value if none sampled
// yet.
func (c *Collector) Latest() (types.MetricPoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.points) == 0 {
		return types.MetricPoint{}, false
	}
	return c.points[len(c.points)-1], true
}

// Window returns a copy of the last n points (or all of them if n<=0 or
// n exceeds the buffer length).
func (c *Collector) Window(n int) []types.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.points) {
		n = len(c.points)
	}
	start := len(c.points) - n
	out := make([]types.MetricPoint, n)
	copy(out, c.points[start:])
	return out
}

// Trend computes the direction described by spec.md §4.7: compare the
// mean of the first half of the window against the mean of the second
// half of a task-failure-rate series (failed / (dispatched+failed) per
// point, the ratio the alert checker also evaluates; points with no
// tasks count as 0).
func (c *Collector) Trend() types.Trend {
	window := c.Window(0)
	if len(window) < 2 {
		return types.Trend{Direction: types.TrendStable}
	}

	mid := len(window) / 2
	firstMean := meanFailureRate(window[:mid])
	secondMean := meanFailureRate(window[mid:])

	dir := types.TrendStable
	if firstMean > 0 {
		ratio := secondMean / firstMean
		switch {
		case ratio > 1.05:
			dir = types.TrendIncreasing
		case ratio < 0.95:
			dir = types.TrendDecreasing
		}
	} else if secondMean > 0 {
		dir = types.TrendIncreasing
	}

	return types.Trend{Direction: dir, FirstHalf: firstMean, SecondHalf: secondMean}
}

func meanFailureRate(points []types.MetricPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		total := p.TasksDispatch + p.TasksFailed
		if total == 0 {
			continue
		}
		sum += float64(p.TasksFailed) / float64(total)
	}
	return sum / float64(len(points))
}

func logf(format string, args ...any) {
	log.Printf("[METRICS] "+format, args...)
}
