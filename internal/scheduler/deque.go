package scheduler

import (
	"sync"

	"github.com/hivecore/hivecore/internal/types"
)

// Deque is an unbounded slice-backed double-ended queue: the owning agent
// pushes and pops its own head; thieves steal from the tail. spec.md §5
// describes this as lock-free single-producer/multi-consumer; this
// implementation instead guards a plain slice with a single per-deque
// mutex — a documented simplification (DESIGN.md Open Question #1): no
// testable property in spec.md §8 depends on lock-free performance, and a
// single short critical section per operation keeps the structure
// obviously correct.
type Deque struct {
	mu      sync.Mutex
	tasks   []*types.Task
	ownerID string
}

// NewDeque creates an empty deque owned by ownerID.
func NewDeque(ownerID string) *Deque {
	return &Deque{ownerID: ownerID}
}

// PushHead is the owner's own enqueue (e.g. a task it claims for itself).
func (d *Deque) PushHead(t *types.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append([]*types.Task{t}, d.tasks...)
}

// PopHead is the owner's own dequeue.
func (d *Deque) PopHead() (*types.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return nil, false
	}
	t := d.tasks[0]
	d.tasks = d.tasks[1:]
	return t, true
}

// PopTail is a thief's steal operation.
func (d *Deque) PopTail() (*types.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.tasks)
	if n == 0 {
		return nil, false
	}
	t := d.tasks[n-1]
	d.tasks = d.tasks[:n-1]
	return t, true
}

// Len returns the current deque depth.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Drain removes and returns every task currently in the deque, used when
// clearing a failed agent's stuck entries during recovery.
func (d *Deque) Drain() []*types.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.tasks
	d.tasks = nil
	return out
}

// DequeRegistry is the set of per-agent deques, indexed by agent id, that
// backs work-stealing.
type DequeRegistry struct {
	mu     sync.RWMutex
	deques map[string]*Deque
}

// NewDequeRegistry creates an empty registry.
func NewDequeRegistry() *DequeRegistry {
	return &DequeRegistry{deques: make(map[string]*Deque)}
}

// For returns (creating if necessary) the deque owned by agentID.
func (r *DequeRegistry) For(agentID string) *Deque {
	r.mu.RLock()
	d, ok := r.deques[agentID]
	r.mu.RUnlock()
	if ok {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deques[agentID]; ok {
		return d
	}
	d = NewDeque(agentID)
	r.deques[agentID] = d
	return d
}

// Remove drops an agent's deque entirely, e.g. when the agent is removed.
func (r *DequeRegistry) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deques, agentID)
}

// Sizes returns a snapshot of every deque's depth, for snapshot_queue().
func (r *DequeRegistry) Sizes() map[string]int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.deques))
	deques := make([]*Deque, 0, len(r.deques))
	for id, d := range r.deques {
		ids = append(ids, id)
		deques = append(deques, d)
	}
	r.mu.RUnlock()

	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = deques[i].Len()
	}
	return out
}

// RandomVictimExcept returns an arbitrary agent id other than exclude that
// currently owns a non-empty deque, for the work-stealing probe. The
// "random" requirement from spec.md §4.3 is satisfied by Go's unordered
// map iteration rather than a dedicated RNG, avoiding stdlib math/rand
// seeding concerns in a hot path.
func (r *DequeRegistry) RandomVictimExcept(exclude string) (*Deque, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, d := range r.deques {
		if id == exclude {
			continue
		}
		if d.Len() > 0 {
			return d, true
		}
	}
	return nil, false
}

// ClearOwner drains agentID's deque and returns the count and task ids
// released, implementing the resilience.DequeClearer contract used by
// agent recovery's "clear stuck work-stealing-deque entries" step.
func (r *DequeRegistry) ClearOwner(agentID string) (int, []string) {
	d := r.For(agentID)
	drained := d.Drain()
	ids := make([]string, len(drained))
	for i, t := range drained {
		ids[i] = t.ID
	}
	return len(drained), ids
}
