// Package swarm implements the periodic physics tick of spec.md §4.4:
// position updates from cohesion/separation/task-anchor forces, linear
// energy decay/restore bounded to [0,1], and formation selection per task
// priority class. Formation participants are ranked by energy; the
// capability score used for task assignment is not applied here.
//
// No teacher file implements swarm physics (this is genuinely new
// domain surface the distilled spec introduces); built in the teacher's
// own concurrency idiom — a ticker-driven loop over a snapshot read from
// the Agent Manager, mirroring internal/metrics.Collector's
// sample-on-tick structure — rather than inventing an unrelated pattern.
package swarm

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/types"
)

const (
	cohesionWeight    = 0.1
	separationWeight  = 0.2
	taskAnchorWeight  = 0.05
	separationRadius  = 5.0
	maxStepMagnitude  = 1.0

	energyDecayPerTick   = 0.01
	energyRestorePerTick = 0.02
)

// AgentView is the slice of the Agent Manager the swarm engine reads and
// writes. *agentmgr.Manager satisfies this directly.
type AgentView interface {
	List(f agentmgr.Filter) []*types.Agent
	SetPosition(id string, pos types.Position) error
	RestoreEnergy(id string, delta float64) error
}

// Engine drives one swarm tick at a time; callers own the ticker cadence
// (default 500ms per spec.md §4.4).
type Engine struct {
	agents AgentView
}

// New builds an Engine.
func New(agents AgentView) *Engine {
	return &Engine{agents: agents}
}

// Tick updates every agent's position and energy, then returns the
// formations selected for the given pending task priority classes (one
// formation per distinct priority present).
func (e *Engine) Tick(pendingPriorities []types.Priority) []types.Formation {
	agents := e.agents.List(agentmgr.Filter{})
	if len(agents) == 0 {
		return nil
	}

	e.updatePositions(agents)
	e.updateEnergy(agents)

	return e.selectFormations(agents, pendingPriorities)
}

func (e *Engine) updatePositions(agents []*types.Agent) {
	centroid := centroidOf(agents)

	// Group by current task type for the task-anchor attractor.
	taskCentroids := make(map[string]types.Position)
	taskCounts := make(map[string]int)
	for _, a := range agents {
		if a.CurrentTaskType == "" {
			continue
		}
		c := taskCentroids[a.CurrentTaskType]
		c.X += a.Position.X
		c.Y += a.Position.Y
		taskCentroids[a.CurrentTaskType] = c
		taskCounts[a.CurrentTaskType]++
	}
	for k, c := range taskCentroids {
		n := float64(taskCounts[k])
		taskCentroids[k] = types.Position{X: c.X / n, Y: c.Y / n}
	}

	for _, a := range agents {
		cohesion := scaled(vectorTo(a.Position, centroid), cohesionWeight)
		separation := separationForce(a, agents)
		anchor := types.Position{}
		if a.CurrentTaskType != "" {
			if c, ok := taskCentroids[a.CurrentTaskType]; ok {
				anchor = scaled(vectorTo(a.Position, c), taskAnchorWeight)
			}
		}

		step := types.Position{
			X: cohesion.X + separation.X + anchor.X,
			Y: cohesion.Y + separation.Y + anchor.Y,
		}
		step = clipMagnitude(step, maxStepMagnitude)

		newPos := types.Position{X: a.Position.X + step.X, Y: a.Position.Y + step.Y}
		_ = e.agents.SetPosition(a.ID, newPos)
	}
}

func (e *Engine) updateEnergy(agents []*types.Agent) {
	for _, a := range agents {
		switch a.State {
		case types.StateWorking:
			_ = e.agents.RestoreEnergy(a.ID, -energyDecayPerTick)
		case types.StateIdle:
			_ = e.agents.RestoreEnergy(a.ID, energyRestorePerTick)
		}
	}
}

func (e *Engine) selectFormations(agents []*types.Agent, priorities []types.Priority) []types.Formation {
	seen := make(map[types.Priority]bool)
	var out []types.Formation
	for _, p := range priorities {
		if seen[p] {
			continue
		}
		seen[p] = true

		kind := types.FormationForPriority(p)
		cap := types.MaxFormationSize(kind)

		var participants []*types.Agent
		if kind == types.FormationStar {
			participants = selectStar(agents, cap)
		} else {
			participants = topIdleByEnergy(agents, cap)
		}
		if len(participants) == 0 {
			continue
		}

		ids := make([]string, len(participants))
		for i, a := range participants {
			ids[i] = a.ID
		}

		out = append(out, types.Formation{
			ID:       uuid.New().String(),
			Kind:     kind,
			AgentIDs: ids,
		})
	}
	return out
}

// topIdleByEnergy orders Idle agents by energy desc (a stand-in for the
// full §4.2 capability-scoring rule, reused here since the swarm engine
// has no task-requirement context to score against) and caps at n.
func topIdleByEnergy(agents []*types.Agent, n int) []*types.Agent {
	var idle []*types.Agent
	for _, a := range agents {
		if a.State == types.StateIdle {
			idle = append(idle, a)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].Energy > idle[j].Energy })
	if len(idle) > n {
		idle = idle[:n]
	}
	return idle
}

// selectStar fills a Star formation per spec.md §4.4's composition rule:
// one Coordinator plus up to cap-1 Workers (other non-Coordinator
// variants fill only the seats left when too few Workers are Idle), each
// group ranked by energy desc same as topIdleByEnergy. A Star with no Idle Coordinator at all is skipped
// rather than filled entirely from Workers.
func selectStar(agents []*types.Agent, cap int) []*types.Agent {
	var coordinators, rest []*types.Agent
	for _, a := range agents {
		if a.State != types.StateIdle {
			continue
		}
		if a.Variant == types.VariantCoordinator {
			coordinators = append(coordinators, a)
		} else {
			rest = append(rest, a)
		}
	}
	if len(coordinators) == 0 {
		return nil
	}
	sort.Slice(coordinators, func(i, j int) bool { return coordinators[i].Energy > coordinators[j].Energy })
	sort.Slice(rest, func(i, j int) bool {
		wi, wj := rest[i].Variant == types.VariantWorker, rest[j].Variant == types.VariantWorker
		if wi != wj {
			return wi
		}
		return rest[i].Energy > rest[j].Energy
	})

	participants := []*types.Agent{coordinators[0]}
	if remaining := cap - 1; remaining > 0 {
		if len(rest) > remaining {
			rest = rest[:remaining]
		}
		participants = append(participants, rest...)
	}
	return participants
}

func centroidOf(agents []*types.Agent) types.Position {
	var c types.Position
	for _, a := range agents {
		c.X += a.Position.X
		c.Y += a.Position.Y
	}
	n := float64(len(agents))
	return types.Position{X: c.X / n, Y: c.Y / n}
}

func vectorTo(from, to types.Position) types.Position {
	return types.Position{X: to.X - from.X, Y: to.Y - from.Y}
}

func scaled(p types.Position, w float64) types.Position {
	return types.Position{X: p.X * w, Y: p.Y * w}
}

// separationForce computes inverse-distance repulsion from every
// neighbor within separationRadius.
func separationForce(self *types.Agent, agents []*types.Agent) types.Position {
	var force types.Position
	for _, other := range agents {
		if other.ID == self.ID {
			continue
		}
		dx := self.Position.X - other.Position.X
		dy := self.Position.Y - other.Position.Y
		dist := math.Hypot(dx, dy)
		if dist == 0 || dist >= separationRadius {
			continue
		}
		// Inverse-distance repulsion: stronger the closer the neighbor.
		strength := (separationRadius - dist) / separationRadius
		force.X += (dx / dist) * strength
		force.Y += (dy / dist) * strength
	}
	return scaled(force, separationWeight)
}

func clipMagnitude(p types.Position, max float64) types.Position {
	mag := math.Hypot(p.X, p.Y)
	if mag <= max || mag == 0 {
		return p
	}
	scale := max / mag
	return types.Position{X: p.X * scale, Y: p.Y * scale}
}
