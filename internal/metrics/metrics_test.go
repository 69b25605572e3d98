package metrics

import (
	"testing"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

type fakeResources struct{ snap types.ResourceSnapshot }

func (f fakeResources) Sample() types.ResourceSnapshot { return f.snap }

type fakeAgentCounters struct{ counters AgentCounters }

func (f fakeAgentCounters) SampleAgentCounters() AgentCounters { return f.counters }

func TestCollectorSampleAndWindow(t *testing.T) {
	c := New(fakeResources{types.ResourceSnapshot{CPUPercent: 0.5}}, fakeAgentCounters{}, 3)
	for i := 0; i < 5; i++ {
		c.Sample()
	}
	window := c.Window(0)
	if len(window) != 3 {
		t.Fatalf("expected ring buffer to cap at capacity 3, got %d", len(window))
	}
	latest, ok := c.Latest()
	if !ok {
		t.Fatalf("expected a latest point after sampling")
	}
	if latest.CPUPercent != 0.5 {
		t.Fatalf("unexpected cpu percent: %v", latest.CPUPercent)
	}
}

func TestCollectorTrend(t *testing.T) {
	c := New(fakeResources{}, fakeAgentCounters{}, 10)

	// First half: low failure rate.
	low := fakeAgentCounters{AgentCounters{TasksDispatched: 9, TasksFailed: 1}}
	c.agents = low
	for i := 0; i < 3; i++ {
		c.Sample()
	}

	// Second half: much higher failure rate.
	high := fakeAgentCounters{AgentCounters{TasksDispatched: 2, TasksFailed: 8}}
	c.agents = high
	for i := 0; i < 3; i++ {
		c.Sample()
	}

	trend := c.Trend()
	if trend.Direction != types.TrendIncreasing {
		t.Fatalf("expected increasing trend, got %s (first=%.3f second=%.3f)", trend.Direction, trend.FirstHalf, trend.SecondHalf)
	}
}

func TestAlertCheckerCooldown(t *testing.T) {
	checker := NewAlertChecker(DefaultThresholds(), time.Minute)
	point := types.MetricPoint{CPUPercent: 0.95}

	first := checker.Check(point)
	if len(first) != 1 {
		t.Fatalf("expected exactly one alert for critical cpu, got %d", len(first))
	}
	if first[0].Level != types.AlertCritical {
		t.Fatalf("expected Critical level, got %s", first[0].Level)
	}

	second := checker.Check(point)
	if len(second) != 0 {
		t.Fatalf("expected cooldown to suppress duplicate alert, got %d", len(second))
	}
}

func TestAlertCheckerWarnVsCrit(t *testing.T) {
	checker := NewAlertChecker(DefaultThresholds(), time.Minute)
	warn := checker.Check(types.MetricPoint{CPUPercent: 0.75})
	if len(warn) != 1 || warn[0].Level != types.AlertWarning {
		t.Fatalf("expected a single Warning alert, got %+v", warn)
	}
}

func TestAlertCheckerNoAlertBelowThreshold(t *testing.T) {
	checker := NewAlertChecker(DefaultThresholds(), time.Minute)
	none := checker.Check(types.MetricPoint{CPUPercent: 0.1, MemPercent: 0.1})
	if len(none) != 0 {
		t.Fatalf("expected no alerts for nominal metrics, got %+v", none)
	}
}
