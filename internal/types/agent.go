// Package types holds the shared data model described by the hivecore
// specification: agents, capabilities, tasks, formations, learning
// patterns, metric points and alerts. Every other package depends on this
// one; it depends on nothing inside hivecore.
package types

import (
	"fmt"
	"time"
)

// AgentVariant tags the broad role an agent plays.
type AgentVariant string

const (
	VariantWorker      AgentVariant = "worker"
	VariantCoordinator AgentVariant = "coordinator"
	VariantLearner     AgentVariant = "learner"
	VariantSpecialist  AgentVariant = "specialist"
)

// AgentState is the lifecycle state machine position of an agent.
type AgentState string

const (
	StateIdle          AgentState = "idle"
	StateWorking       AgentState = "working"
	StateLearning      AgentState = "learning"
	StateCommunicating AgentState = "communicating"
	StateFailed        AgentState = "failed"
)

// legalAgentTransitions encodes the transition table from spec.md §4.2:
// any state may become Failed; Failed only leaves via recovery (modeled
// here as Failed -> Idle, the terminal step of a successful repair);
// Idle <-> Working is driven by the distributor; Communicating is a brief
// Idle-adjacent state used by the event bus.
var legalAgentTransitions = map[AgentState]map[AgentState]bool{
	StateIdle: {
		StateWorking:       true,
		StateCommunicating: true,
		StateFailed:        true,
		StateLearning:      true,
	},
	StateWorking: {
		StateIdle:   true,
		StateFailed: true,
	},
	StateLearning: {
		StateIdle:   true,
		StateFailed: true,
	},
	StateCommunicating: {
		StateIdle:   true,
		StateFailed: true,
	},
	StateFailed: {
		StateIdle: true, // only via recovery
	},
}

// CanTransition reports whether moving from -> to is legal.
func CanTransition(from, to AgentState) bool {
	if from == to {
		return true
	}
	allowed, ok := legalAgentTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Capability is a named skill an agent has, with a proficiency level and a
// rate at which successful use improves that proficiency.
type Capability struct {
	Name         string  `json:"name"`
	Proficiency  float64 `json:"proficiency"`   // in [0,1]
	LearningRate float64 `json:"learning_rate"` // in [0,1]
}

// Validate checks invariant #2 from spec.md §8: bounds on proficiency and
// learning rate, and a non-empty name.
func (c Capability) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if c.Proficiency < 0 || c.Proficiency > 1 {
		return fmt.Errorf("capability %q proficiency out of [0,1]: %v", c.Name, c.Proficiency)
	}
	if c.LearningRate < 0 || c.LearningRate > 1 {
		return fmt.Errorf("capability %q learning_rate out of [0,1]: %v", c.Name, c.LearningRate)
	}
	return nil
}

// Requirement is a capability a task demands at a minimum proficiency.
type Requirement struct {
	Name             string  `json:"name"`
	MinProficiency   float64 `json:"min_proficiency"`
}

// Position is a planar coordinate used by the swarm engine.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Agent is the exclusively-owned record maintained by the Agent Manager.
// Every other subsystem references agents only by ID.
type Agent struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Variant        AgentVariant `json:"variant"`
	SpecialistDomain string     `json:"specialist_domain,omitempty"`
	State          AgentState   `json:"state"`
	Capabilities   []Capability `json:"capabilities"`
	Position       Position     `json:"position"`
	Energy         float64      `json:"energy"` // in [0,1]
	CreatedAt      time.Time    `json:"created_at"`
	LastActiveAt   time.Time    `json:"last_active_at"`
	Experience     int64        `json:"experience"`
	SocialLinks    int          `json:"social_links"`

	// Rolling per-agent execution stats used by scoring and alerts.
	TasksCompleted   int64         `json:"tasks_completed"`
	TasksFailed      int64         `json:"tasks_failed"`
	AverageDuration  time.Duration `json:"average_duration"`
	FailureStreak    int           `json:"failure_streak"`
	CurrentTaskType  string        `json:"current_task_type,omitempty"`
}

// Clone returns a deep-enough copy safe to hand out as a read snapshot.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Capabilities = make([]Capability, len(a.Capabilities))
	copy(cp.Capabilities, a.Capabilities)
	return &cp
}

// CapabilityByName returns a pointer into a.Capabilities, or nil.
func (a *Agent) CapabilityByName(name string) *Capability {
	for i := range a.Capabilities {
		if a.Capabilities[i].Name == name {
			return &a.Capabilities[i]
		}
	}
	return nil
}

// SatisfiesRequirements reports whether the agent meets every requirement
// at or above its minimum proficiency (spec.md §4.2 find_candidates rule).
func (a *Agent) SatisfiesRequirements(reqs []Requirement) bool {
	for _, r := range reqs {
		cap := a.CapabilityByName(r.Name)
		if cap == nil || cap.Proficiency < r.MinProficiency {
			return false
		}
	}
	return true
}

// SuccessRate returns the agent's historical completion ratio, 0 if the
// agent has no recorded executions yet.
func (a *Agent) SuccessRate() float64 {
	total := a.TasksCompleted + a.TasksFailed
	if total == 0 {
		return 0
	}
	return float64(a.TasksCompleted) / float64(total)
}
