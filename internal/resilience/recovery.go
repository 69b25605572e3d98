package resilience

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

// AgentAccessor is the narrow slice of the Agent Manager recovery needs:
// read the agent, restore energy, and drive the idle/failed transition.
type AgentAccessor interface {
	Get(id string) (*types.Agent, error)
	RestoreEnergy(id string, delta float64) error
	TransitionState(id string, newState types.AgentState) error
	Remove(id string) error
}

// DequeClearer abstracts clearing an agent's stuck work-stealing deque
// entries; implemented by internal/scheduler.
type DequeClearer interface {
	ClearOwner(agentID string) (clearedCount int, releasedTaskIDs []string)
}

// TaskReleaser abstracts returning released tasks to the priority queue
// with bumped retry counters, used when recovery exhausts its attempts.
type TaskReleaser interface {
	ReleaseForRetry(taskIDs []string) error
}

const energyFloor = 0.2

// RecoveryPolicy configures the bounded-retry repair loop.
type RecoveryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	CapBackoff  time.Duration
}

// DefaultRecoveryPolicy mirrors spec.md §4.6's defaults.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond, CapBackoff: 10 * time.Second}
}

// Recovery runs the ordered repair steps spec.md §4.6 names, with
// exponential back-off between attempts, against a single failed agent.
type Recovery struct {
	agents  AgentAccessor
	deques  DequeClearer
	tasks   TaskReleaser
	policy  RecoveryPolicy
}

// NewRecovery builds a Recovery collaborator.
func NewRecovery(agents AgentAccessor, deques DequeClearer, tasks TaskReleaser, policy RecoveryPolicy) *Recovery {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRecoveryPolicy()
	}
	return &Recovery{agents: agents, deques: deques, tasks: tasks, policy: policy}
}

// Repair runs up to MaxAttempts repair passes against agentID, with
// exponential back-off between attempts. Success returns nil with the
// agent transitioned back to Idle and its failure streak zeroed (handled
// by TransitionState). Exhaustion removes the agent and releases its
// queued work, returning RecoveryExhausted.
func (r *Recovery) Repair(ctx context.Context, agentID string) error {
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.backoffFor(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := r.runRepairSteps(agentID); err != nil {
			log.Printf("[RECOVERY] attempt %d/%d for agent %s failed: %v", attempt+1, r.policy.MaxAttempts, agentID, err)
			continue
		}

		if err := r.agents.TransitionState(agentID, types.StateIdle); err != nil {
			log.Printf("[RECOVERY] agent %s repaired but failed to transition to idle: %v", agentID, err)
			continue
		}
		log.Printf("[RECOVERY] agent %s recovered after %d attempt(s)", agentID, attempt+1)
		return nil
	}

	return r.exhaust(agentID)
}

func (r *Recovery) backoffFor(attempt int) time.Duration {
	d := time.Duration(float64(r.policy.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if d > r.policy.CapBackoff {
		d = r.policy.CapBackoff
	}
	return d
}

// runRepairSteps executes the four ordered repair steps from spec.md
// §4.6: ensure energy >= floor; verify capability list is non-empty and
// in-range; clear stuck deque entries; run a synthetic no-op and assert
// it terminates.
func (r *Recovery) runRepairSteps(agentID string) error {
	agent, err := r.agents.Get(agentID)
	if err != nil {
		return err
	}

	if agent.Energy < energyFloor {
		if err := r.agents.RestoreEnergy(agentID, energyFloor-agent.Energy); err != nil {
			return err
		}
	}

	if len(agent.Capabilities) == 0 {
		return hiveerr.New(hiveerr.Internal, "agent has no capabilities, repair cannot proceed")
	}
	for _, c := range agent.Capabilities {
		if err := c.Validate(); err != nil {
			return hiveerr.Wrap(hiveerr.Internal, "agent capability out of range", err)
		}
	}

	if r.deques != nil {
		r.deques.ClearOwner(agentID)
	}

	return r.runSyntheticTask(agentID)
}

// runSyntheticTask simulates the "run a synthetic no-op task and assert
// it terminates" repair step: a bounded no-op that always terminates
// immediately, standing in for a real execution-wrapper round trip.
func (r *Recovery) runSyntheticTask(agentID string) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(time.Second):
		return hiveerr.New(hiveerr.Timeout, "synthetic no-op task did not terminate")
	}
}

func (r *Recovery) exhaust(agentID string) error {
	var released []string
	if r.deques != nil {
		_, released = r.deques.ClearOwner(agentID)
	}
	if len(released) > 0 && r.tasks != nil {
		if err := r.tasks.ReleaseForRetry(released); err != nil {
			log.Printf("[RECOVERY] failed to release tasks for exhausted agent %s: %v", agentID, err)
		}
	}
	if err := r.agents.Remove(agentID); err != nil {
		log.Printf("[RECOVERY] failed to remove exhausted agent %s: %v", agentID, err)
	}
	log.Printf("[RECOVERY] agent %s exhausted recovery attempts, removed", agentID)
	return hiveerr.Newf(hiveerr.RecoveryExhausted, "agent %s exhausted %d recovery attempts", agentID, r.policy.MaxAttempts)
}
