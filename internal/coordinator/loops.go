package coordinator

import (
	"context"
	"log"
	"time"

	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/types"
)

const schedulerBatchSize = 16

// runSchedulerLoop is spec.md §4.1's "scheduler tick": dispatches queued
// tasks and lets every Idle agent attempt a work-stealing probe on a
// 100ms tick, and retries the waiting set on a separate 1s tick, matching
// the teacher's ticker-driven backgroundTasks loop.
func (c *Coordinator) runSchedulerLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	retryTicker := time.NewTicker(1 * time.Second)
	defer retryTicker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.dist.Tick(ctx, schedulerBatchSize)
			c.stealTick(ctx)
		case <-retryTicker.C:
			c.dist.RetryWaiting(ctx)
		}
	}
}

// stealTick gives every currently Idle agent one work-stealing probe.
// StealTick itself is a no-op for an agent whose own deque is already
// non-empty, so calling it unconditionally for the whole Idle set is
// cheap and keeps the steal probe on the same cadence as the dispatch
// tick rather than needing its own ticker.
func (c *Coordinator) stealTick(ctx context.Context) {
	for _, agent := range c.agents.List(agentmgr.Filter{State: types.StateIdle}) {
		c.dist.StealTick(ctx, agent.ID)
	}
}

// runSwarmLoop is spec.md §4.4's periodic physics tick (default 500ms).
func (c *Coordinator) runSwarmLoop(ctx context.Context) {
	defer c.wg.Done()
	interval := c.cfg.Swarm.TickInterval()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			var pending []types.Priority
			for _, t := range c.dist.ListTasks() {
				if t.Status.Kind == types.TaskPending {
					pending = append(pending, t.Priority)
				}
			}
			formations := c.swarmEng.Tick(pending)
			for _, f := range formations {
				c.eventBus.Publish(events.ResourceUpdate, f)
			}
		}
	}
}

// runLearningCleanupLoop is spec.md §4.5's cleanup(now, retention),
// periodically pruning stale patterns.
func (c *Coordinator) runLearningCleanupLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	retention := c.cfg.Learning.RetentionWindow()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			evicted := c.learn.Cleanup(time.Now(), retention)
			if evicted > 0 {
				log.Printf("[LEARNING] cleanup evicted %d stale patterns", evicted)
			}
		}
	}
}

// runMetricsLoop is spec.md §4.7's metrics tick: sample, evaluate
// thresholds, publish MetricsUpdate/AlertTriggered.
func (c *Coordinator) runMetricsLoop(ctx context.Context) {
	defer c.wg.Done()
	interval := c.cfg.Metrics.TickInterval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			point := c.collector.Sample()
			c.eventBus.Publish(events.MetricsUpdate, point)
			for _, alert := range c.alerts.Check(point) {
				c.eventBus.Publish(events.AlertTriggered, alert)
			}
		}
	}
}

// runEventBridge forwards every Event Bus envelope to the WebSocket hub,
// and watches for AgentFailed to kick off recovery — the glue between
// internal/events (external fan-out) and internal/resilience (the
// repair loop), matching SPEC_FULL.md's bus-mediated decoupling design.
func (c *Coordinator) runEventBridge() {
	defer c.wg.Done()
	sub := c.eventBus.Subscribe()
	defer sub.Unsubscribe()

	hub := c.httpServer.Hub()
	for {
		select {
		case <-c.stopChan:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			hub.Broadcast(ev)
			if ev.Kind == events.AgentFailed {
				if agentID, ok := ev.Payload.(string); ok {
					go c.handleAgentFailed(agentID)
				}
			}
		}
	}
}

func (c *Coordinator) handleAgentFailed(agentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.recovery.Repair(ctx, agentID); err != nil {
		log.Printf("[RECOVERY] agent %s recovery failed: %v", agentID, err)
		if c.busCli != nil {
			_ = c.busCli.PublishJSON("hivecore.agent.recovery_exhausted", map[string]string{"agent_id": agentID})
		}
		return
	}
	if c.busCli != nil {
		_ = c.busCli.PublishJSON("hivecore.agent.recovered", map[string]string{"agent_id": agentID})
	}
}
