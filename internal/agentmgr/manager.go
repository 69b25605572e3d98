// Package agentmgr implements the Agent Manager: the registry of record
// for every agent, capability-matched candidate search, and the outcome
// bookkeeping (energy decay, capability learning, rolling success rate)
// that drives the rest of the system's scoring decisions.
//
// Grounded on the teacher's internal/persistence.JSONStore copy-on-read
// pattern (internal/persistence/store.go) and internal/metrics.Collector's
// per-entity locking discipline (internal/metrics/collector.go), adapted
// from a dashboard's agent roster to the owning registry spec.md §4.2
// describes.
package agentmgr

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

const (
	// baseEnergyCost is spent on every completed or failed task.
	baseEnergyCost = 0.05
	// successRecoveryCredit is returned to energy on a successful task,
	// partially offsetting baseEnergyCost.
	successRecoveryCredit = 0.03
)

// Filter narrows List() results.
type Filter struct {
	State   types.AgentState
	Variant types.AgentVariant
	Limit   int
	Offset  int
}

// record is the lock-guarded storage cell for one agent.
type record struct {
	mu    sync.RWMutex
	agent types.Agent
}

// Manager is the concurrent agent registry.
type Manager struct {
	mu       sync.RWMutex
	agents   map[string]*record
	maxAgents int
}

// New creates an empty Manager. maxAgents <= 0 means unbounded.
func New(maxAgents int) *Manager {
	return &Manager{
		agents:    make(map[string]*record),
		maxAgents: maxAgents,
	}
}

// Spec describes the agent create_agent wants to install.
type Spec struct {
	Name             string
	Variant          types.AgentVariant
	SpecialistDomain string
	Capabilities     []types.Capability
}

// Validate applies create_agent's input checks (spec.md §4.1): non-empty
// name, and every capability within bounds.
func (s Spec) Validate() error {
	if s.Name == "" {
		return hiveerr.New(hiveerr.Validation, "agent name must not be empty")
	}
	for _, c := range s.Capabilities {
		if err := c.Validate(); err != nil {
			return hiveerr.Wrap(hiveerr.Validation, "invalid capability", err)
		}
	}
	return nil
}

// Register installs a freshly-specced agent, generating its id.
// Corresponds to Coordinator.create_agent + AgentManager.register.
func (m *Manager) Register(spec Spec) (*types.Agent, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxAgents > 0 && len(m.agents) >= m.maxAgents {
		return nil, hiveerr.New(hiveerr.QueueFull, "agent registry at capacity")
	}

	now := time.Now()
	id := uuid.New().String()
	a := types.Agent{
		ID:           id,
		Name:         spec.Name,
		Variant:      spec.Variant,
		SpecialistDomain: spec.SpecialistDomain,
		State:        types.StateIdle,
		Capabilities: append([]types.Capability(nil), spec.Capabilities...),
		Energy:       1.0,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	m.agents[id] = &record{agent: a}
	return a.Clone(), nil
}

// Get returns a snapshot copy of the agent, or NotFound.
func (m *Manager) Get(id string) (*types.Agent, error) {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return nil, hiveerr.AgentNotFound(id)
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.agent.Clone(), nil
}

// Remove deletes the agent. Returns NotFound if it doesn't exist.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return hiveerr.AgentNotFound(id)
	}
	delete(m.agents, id)
	return nil
}

// List returns snapshots matching filter, eventually consistent with
// concurrent mutation per spec.md §4.2.
func (m *Manager) List(f Filter) []*types.Agent {
	m.mu.RLock()
	recs := make([]*record, 0, len(m.agents))
	for _, r := range m.agents {
		recs = append(recs, r)
	}
	m.mu.RUnlock()

	out := make([]*types.Agent, 0, len(recs))
	for _, r := range recs {
		r.mu.RLock()
		a := r.agent
		r.mu.RUnlock()

		if f.State != "" && a.State != f.State {
			continue
		}
		if f.Variant != "" && a.Variant != f.Variant {
			continue
		}
		out = append(out, a.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if f.Offset > 0 && f.Offset < len(out) {
		out = out[f.Offset:]
	} else if f.Offset >= len(out) {
		out = nil
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// Count returns the number of registered agents.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// Candidate is a scored result from FindCandidates.
type Candidate struct {
	AgentID string
	Score   float64
}

// FindCandidates returns every Idle agent that satisfies reqs, ordered by
// the scoring rule of spec.md §4.2: energy*0.3 + normalized-experience*0.2
// + summed matched-capability-proficiency*0.5, ties broken by higher
// historical success rate. The snapshot is stable against concurrent
// updates because each agent record is read under its own lock.
func (m *Manager) FindCandidates(reqs []types.Requirement) []Candidate {
	m.mu.RLock()
	recs := make([]*record, 0, len(m.agents))
	for _, r := range m.agents {
		recs = append(recs, r)
	}
	m.mu.RUnlock()

	const maxExperienceNorm = 100.0

	var out []Candidate
	for _, r := range recs {
		r.mu.RLock()
		a := r.agent
		r.mu.RUnlock()

		if a.State != types.StateIdle {
			continue
		}
		if !a.SatisfiesRequirements(reqs) {
			continue
		}

		capSum := 0.0
		for _, req := range reqs {
			if c := a.CapabilityByName(req.Name); c != nil {
				capSum += c.Proficiency
			}
		}
		expNorm := float64(a.Experience) / maxExperienceNorm
		if expNorm > 1 {
			expNorm = 1
		}
		score := a.Energy*0.3 + expNorm*0.2 + capSum*0.5
		out = append(out, Candidate{AgentID: a.ID, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		si, _ := m.Get(out[i].AgentID)
		sj, _ := m.Get(out[j].AgentID)
		if si == nil || sj == nil {
			return false
		}
		return si.SuccessRate() > sj.SuccessRate()
	})
	return out
}

// TransitionState enforces the legal-transition table. Illegal transitions
// return hiveerr.Conflict (IllegalStateTransition).
func (m *Manager) TransitionState(id string, newState types.AgentState) error {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return hiveerr.AgentNotFound(id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !types.CanTransition(rec.agent.State, newState) {
		return hiveerr.IllegalStateTransition(string(rec.agent.State), string(newState))
	}
	rec.agent.State = newState
	rec.agent.LastActiveAt = time.Now()
	if newState == types.StateFailed {
		rec.agent.FailureStreak++
	} else if newState == types.StateIdle {
		// Recovery back to Idle clears the streak (spec.md §4.6).
		rec.agent.FailureStreak = 0
	}
	return nil
}

// CompareAndTransition atomically moves the agent from `from` to `to`,
// failing with Conflict if the agent is not currently in `from`. This is
// how the scheduler wins or loses the race described in spec.md §4.3 step
// 5 ("If the transition loses a race...").
func (m *Manager) CompareAndTransition(id string, from, to types.AgentState) error {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return hiveerr.AgentNotFound(id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.agent.State != from {
		return hiveerr.New(hiveerr.Conflict, "agent no longer in expected state")
	}
	if !types.CanTransition(from, to) {
		return hiveerr.IllegalStateTransition(string(from), string(to))
	}
	rec.agent.State = to
	rec.agent.LastActiveAt = time.Now()
	return nil
}

// Outcome is the execution result fed into UpdateAfterTask.
type Outcome struct {
	Success      bool
	Duration     time.Duration
	UsedCapabilities []string
	TaskType     string
}

// UpdateAfterTask applies spec.md §4.2's post-execution bookkeeping:
// counters, rolling average duration, energy decay/recovery, and on
// success, capability learning via
// proficiency += learning_rate*(1-proficiency), clipped to [0,1].
func (m *Manager) UpdateAfterTask(id string, o Outcome) error {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return hiveerr.AgentNotFound(id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	a := &rec.agent

	if o.Success {
		a.TasksCompleted++
		a.Experience++
	} else {
		a.TasksFailed++
	}

	n := a.TasksCompleted + a.TasksFailed
	if n == 1 {
		a.AverageDuration = o.Duration
	} else {
		// incremental mean
		a.AverageDuration += (o.Duration - a.AverageDuration) / time.Duration(n)
	}

	energy := a.Energy - baseEnergyCost
	if o.Success {
		energy += successRecoveryCredit
	}
	a.Energy = clip01(energy)

	if o.Success {
		for _, name := range o.UsedCapabilities {
			if c := a.CapabilityByName(name); c != nil {
				c.Proficiency = clip01(c.Proficiency + c.LearningRate*(1-c.Proficiency))
			}
		}
	}

	a.CurrentTaskType = o.TaskType
	a.LastActiveAt = time.Now()
	return nil
}

// RestoreEnergy is used by the swarm engine's idle-recovery tick and by
// agent recovery's "ensure energy >= floor" repair step.
func (m *Manager) RestoreEnergy(id string, delta float64) error {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return hiveerr.AgentNotFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.agent.Energy = clip01(rec.agent.Energy + delta)
	return nil
}

// SetPosition is used by the swarm engine.
func (m *Manager) SetPosition(id string, pos types.Position) error {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return hiveerr.AgentNotFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.agent.Position = pos
	return nil
}

// IncrementSocialLinks bumps the social-link counter by delta (may be
// negative) and clamps at zero.
func (m *Manager) IncrementSocialLinks(id string, delta int) error {
	m.mu.RLock()
	rec, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return hiveerr.AgentNotFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.agent.SocialLinks += delta
	if rec.agent.SocialLinks < 0 {
		rec.agent.SocialLinks = 0
	}
	return nil
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
