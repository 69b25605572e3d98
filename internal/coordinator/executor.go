package coordinator

import (
	"context"
	"time"

	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/learning"
	"github.com/hivecore/hivecore/internal/resilience"
	"github.com/hivecore/hivecore/internal/types"
)

// Execute implements scheduler.Executor: it runs task against agentID
// through the capability-verifying, timeout-enforcing, circuit-breaker-
// guarded wrapper spec.md §4.3/§4.6 describe, then updates the Adaptive
// Learning store with the outcome. Agent counters are updated by the
// Task Distributor; Execute only marks the agent Failed when its breaker
// opens.
//
// hivecore's agents are virtual swarm participants, not spawned
// processes (the teacher's internal/agents.ProcessSpawner has no
// analogue here), so "running" a task means drawing a simulated outcome
// from the agent's learned success probability for this context —
// itself still bounded by the task's timeout and cooperative
// cancellation flag, exactly as spec.md §4.3 requires of a real executor.
func (c *Coordinator) Execute(ctx context.Context, agentID string, task *types.Task) types.ExecutionResult {
	start := time.Now()
	breaker := c.breakerFor(agentID)

	var result types.ExecutionResult
	err := breaker.Do(func() error {
		result = c.simulateExecution(ctx, agentID, task, start)
		if !result.OK {
			return hiveerr.New(hiveerr.Internal, result.Error)
		}
		return nil
	})

	if breaker.State() == resilience.Open {
		// The Task Distributor unconditionally transitions the agent
		// back to Idle immediately after Execute returns, so the
		// Failed transition below must happen after that — hence the
		// short delay. Idle -> Failed is a legal edge regardless of
		// ordering (internal/types.CanTransition).
		go func() {
			time.Sleep(20 * time.Millisecond)
			if agent, aerr := c.agents.Get(agentID); aerr == nil && agent.State != types.StateFailed {
				if terr := c.agents.TransitionState(agentID, types.StateFailed); terr == nil {
					c.eventBus.Publish(events.AgentFailed, agentID)
				}
			}
		}()
	}

	if hiveerr.Is(err, hiveerr.CircuitOpen) {
		return types.ExecutionResult{
			TaskID: task.ID, AgentID: agentID, OK: false,
			Duration: time.Since(start), Error: err.Error(), At: time.Now(),
		}
	}
	return result
}

func (c *Coordinator) simulateExecution(ctx context.Context, agentID string, task *types.Task, start time.Time) types.ExecutionResult {
	agent, err := c.agents.Get(agentID)
	if err != nil {
		return types.ExecutionResult{TaskID: task.ID, AgentID: agentID, OK: false, Duration: 0, Error: err.Error(), At: time.Now()}
	}
	if !agent.SatisfiesRequirements(task.Requirements) {
		// Capability verification miss: classified transient by the
		// distributor, so the task is retried.
		return types.ExecutionResult{TaskID: task.ID, AgentID: agentID, OK: false, Duration: 0, Error: "race_lost", At: time.Now()}
	}

	learnCtx := learning.Context{Agent: agent, TaskDescription: task.Description, RequiredCapabilities: task.Requirements}
	successProb := c.learn.Predict(learnCtx)

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Queue.RetryCap()
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	simulated := time.Duration(50+newExecRand().Intn(200)) * time.Millisecond
	select {
	case <-time.After(simulated):
	case <-runCtx.Done():
		c.learn.Learn(learnCtx, 0)
		return types.ExecutionResult{
			TaskID: task.ID, AgentID: agentID, OK: false,
			Duration: time.Since(start), Error: "task execution timed out", At: time.Now(),
		}
	}

	// Counter/energy/capability-learning bookkeeping is the Task
	// Distributor's job (internal/scheduler.Distributor.execute runs
	// UpdateAfterTask once, generically, for every Executor); this
	// package only owns the adaptive-learning prediction/update.
	success := newExecRand().Float64() < successProb
	c.learn.Learn(learnCtx, boolToOutcome(success))

	if !success {
		return types.ExecutionResult{
			TaskID: task.ID, AgentID: agentID, OK: false,
			Duration: time.Since(start), Error: "simulated task execution failed", At: time.Now(),
		}
	}
	return types.ExecutionResult{TaskID: task.ID, AgentID: agentID, OK: true, Duration: time.Since(start), At: time.Now()}
}

func boolToOutcome(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
