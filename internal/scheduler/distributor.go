package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

// AgentLookup is the narrow slice of the Agent Manager the distributor
// needs: candidate scoring and the Idle<->Working transition race.
// *agentmgr.Manager satisfies this directly.
type AgentLookup interface {
	FindCandidates(reqs []types.Requirement) []agentmgr.Candidate
	Get(id string) (*types.Agent, error)
	CompareAndTransition(id string, from, to types.AgentState) error
	TransitionState(id string, newState types.AgentState) error
	UpdateAfterTask(id string, outcome agentmgr.Outcome) error
}

// Executor runs a task against an assigned agent, enforcing the task's
// timeout and returning the terminal outcome. Implemented by the
// coordinator layer, which knows how to actually dispatch work to an
// agent implementation.
type Executor interface {
	Execute(ctx context.Context, agentID string, task *types.Task) types.ExecutionResult
}

// Publisher is the narrow event-bus slice the distributor needs.
// *events.Bus satisfies this directly.
type Publisher interface {
	Publish(kind events.Kind, payload any) events.Event
}

// RetryPolicy configures the exponential back-off retry rule from
// spec.md §4.3.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
	Factor     float64
}

// DefaultRetryPolicy mirrors spec.md §4.3's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2.0}
}

// Distributor is the Task Distributor of spec.md §4.3.
type Distributor struct {
	queue   *PriorityQueue
	waiting *WaitingSet
	deques  *DequeRegistry

	agents   AgentLookup
	executor Executor
	events   Publisher

	retryPolicy RetryPolicy
	stealBudget int

	mu          sync.Mutex
	byID        map[string]*types.Task // assigned/in-progress tasks, for cancel()
	cancelFlags map[string]*cancelFlag
}

type cancelFlag struct {
	mu        sync.Mutex
	cancelled bool
}

func (c *cancelFlag) set() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *cancelFlag) isSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// New builds a Distributor.
func New(queue *PriorityQueue, waiting *WaitingSet, deques *DequeRegistry, agents AgentLookup, executor Executor, ev Publisher, retryPolicy RetryPolicy, stealBudget int) *Distributor {
	if retryPolicy.MaxRetries == 0 && retryPolicy.Base == 0 {
		retryPolicy = DefaultRetryPolicy()
	}
	if stealBudget <= 0 {
		stealBudget = 3
	}
	return &Distributor{
		queue:       queue,
		waiting:     waiting,
		deques:      deques,
		agents:      agents,
		executor:    executor,
		events:      ev,
		retryPolicy: retryPolicy,
		stealBudget: stealBudget,
		byID:        make(map[string]*types.Task),
		cancelFlags: make(map[string]*cancelFlag),
	}
}

// Enqueue applies submit_task's backpressure rules and pushes the task.
func (d *Distributor) Enqueue(task *types.Task) (warn bool, err error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = types.TaskStatus{Kind: types.TaskPending}

	warn, err = d.queue.Push(task)
	if err != nil {
		return warn, err
	}
	if d.events != nil {
		d.events.Publish(events.TaskCreated, task.Clone())
	}
	return warn, nil
}

// Cancel removes a task from wherever it is queued, or sets its
// cooperative cancellation flag if it is InProgress.
func (d *Distributor) Cancel(taskID string) error {
	if t, ok := d.queue.Remove(taskID); ok {
		t.Status = types.TaskStatus{Kind: types.TaskCancelled}
		return nil
	}
	if t, ok := d.waiting.Remove(taskID); ok {
		t.Status = types.TaskStatus{Kind: types.TaskCancelled}
		return nil
	}

	d.mu.Lock()
	t, tracked := d.byID[taskID]
	flag := d.cancelFlags[taskID]
	d.mu.Unlock()

	if !tracked {
		return hiveerr.TaskNotFound(taskID)
	}
	if t.Status.Kind == types.TaskInProgress && flag != nil {
		flag.set()
		return nil
	}
	return hiveerr.Newf(hiveerr.Conflict, "task %s cannot be cancelled in state %s", taskID, t.Status.Kind)
}

// Tick runs one scheduler pass: pop up to n tasks, assign each to its
// best candidate or park it in the waiting set. Assignment failures that
// lose the Idle->Working race go back to the head of the queue.
func (d *Distributor) Tick(ctx context.Context, n int) {
	tasks := d.queue.PopN(n)
	for _, task := range tasks {
		d.assign(ctx, task)
	}
}

func (d *Distributor) assign(ctx context.Context, task *types.Task) {
	candidates := d.agents.FindCandidates(task.Requirements)
	if len(candidates) == 0 {
		d.waiting.Add(task)
		task.Status = types.TaskStatus{Kind: types.TaskPending}
		if d.events != nil {
			d.events.Publish(events.TaskWaiting, task.Clone())
		}
		return
	}

	chosen := d.applyStickiness(candidates, task)

	if err := d.agents.CompareAndTransition(chosen, types.StateIdle, types.StateWorking); err != nil {
		// Lost the race: return to the head preserving CreatedAt.
		d.queue.PushFront(task)
		return
	}

	task.Status = types.TaskStatus{Kind: types.TaskAssigned, AgentID: chosen}
	if d.events != nil {
		d.events.Publish(events.TaskAssigned, task.Clone())
	}
	task.Status = types.TaskStatus{Kind: types.TaskInProgress, AgentID: chosen, StartedAt: time.Now()}

	flag := &cancelFlag{}
	d.mu.Lock()
	d.byID[task.ID] = task
	d.cancelFlags[task.ID] = flag
	d.mu.Unlock()

	// The task sits on the owner's own deque, briefly stealable by an
	// idle agent's StealTick, until runOwned pops it off the head to
	// actually start it — spec.md §4.3/§5's owner-push/owner-pop,
	// thief-pops-tail deque contract.
	d.deques.For(chosen).PushHead(task)
	go d.runOwned(ctx, chosen, flag)
}

// runOwned pops the calling agent's own deque head and executes whatever
// it finds there. A miss means a thief's StealTick won the race and took
// the task first, in which case this agent simply stands back down —
// the thief's own runOwned call (spawned from StealTick) is responsible
// for running it.
func (d *Distributor) runOwned(ctx context.Context, agentID string, flag *cancelFlag) {
	task, ok := d.deques.For(agentID).PopHead()
	if !ok {
		_ = d.agents.TransitionState(agentID, types.StateIdle)
		return
	}
	d.execute(ctx, agentID, task, flag)
}

// applyStickiness picks among the top-scoring candidates using the
// affinity/deque-depth tie-break spec.md §4.3 step 4 names: prefer the
// agent that most recently ran the same task type, then the agent with
// the shallowest work-stealing deque.
func (d *Distributor) applyStickiness(candidates []agentmgr.Candidate, task *types.Task) string {
	if len(candidates) == 1 {
		return candidates[0].AgentID
	}

	best := candidates[0].Score
	var tied []agentmgr.Candidate
	for _, c := range candidates {
		if c.Score == best {
			tied = append(tied, c)
		} else {
			break
		}
	}
	if len(tied) == 1 {
		return tied[0].AgentID
	}

	bestID := tied[0].AgentID
	bestAffinity := false
	bestDepth := d.deques.For(bestID).Len()
	if a, err := d.agents.Get(bestID); err == nil {
		bestAffinity = a.CurrentTaskType == task.Type
	}

	for _, c := range tied[1:] {
		affinity := false
		if a, err := d.agents.Get(c.AgentID); err == nil {
			affinity = a.CurrentTaskType == task.Type
		}
		depth := d.deques.For(c.AgentID).Len()

		if affinity && !bestAffinity {
			bestID, bestAffinity, bestDepth = c.AgentID, affinity, depth
			continue
		}
		if affinity == bestAffinity && depth < bestDepth {
			bestID, bestDepth = c.AgentID, depth
		}
	}
	return bestID
}

func (d *Distributor) execute(ctx context.Context, agentID string, task *types.Task, flag *cancelFlag) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan types.ExecutionResult, 1)
	go func() {
		resultCh <- d.executor.Execute(execCtx, agentID, task)
	}()

	var result types.ExecutionResult
	select {
	case result = <-resultCh:
	case <-execCtx.Done():
		result = types.ExecutionResult{TaskID: task.ID, AgentID: agentID, OK: false, Error: "timeout", At: time.Now()}
	}

	d.mu.Lock()
	delete(d.byID, task.ID)
	delete(d.cancelFlags, task.ID)
	d.mu.Unlock()

	if flag.isSet() {
		task.Status = types.TaskStatus{Kind: types.TaskCancelled}
		_ = d.agents.TransitionState(agentID, types.StateIdle)
		return
	}

	usedCaps := make([]string, len(task.Requirements))
	for i, req := range task.Requirements {
		usedCaps[i] = req.Name
	}
	_ = d.agents.UpdateAfterTask(agentID, agentmgr.Outcome{
		Success:          result.OK,
		Duration:         result.Duration,
		UsedCapabilities: usedCaps,
		TaskType:         task.Type,
	})
	_ = d.agents.TransitionState(agentID, types.StateIdle)

	if result.OK {
		task.Status = types.TaskStatus{Kind: types.TaskCompleted, Result: "ok"}
		if d.events != nil {
			d.events.Publish(events.TaskCompleted, task.Clone())
		}
		return
	}

	task.Status = types.TaskStatus{Kind: types.TaskFailed, Reason: result.Error}
	if d.events != nil {
		d.events.Publish(events.TaskFailed, task.Clone())
	}
	d.maybeRetry(task, classifyError(result.Error))
}

func classifyError(msg string) types.ErrorClass {
	switch msg {
	case "timeout", "race_lost", "transport":
		return types.ErrorTransient
	default:
		return types.ErrorTerminal
	}
}

func (d *Distributor) maybeRetry(task *types.Task, class types.ErrorClass) {
	if class != types.ErrorTransient {
		return
	}
	if task.RetryCount >= d.retryPolicy.MaxRetries {
		return
	}
	task.RetryCount++
	task.Status = types.TaskStatus{Kind: types.TaskPending}

	delay := backoffDelay(d.retryPolicy.Base, d.retryPolicy.Max, task.RetryCount, d.retryPolicy.Factor)
	t := task
	time.AfterFunc(delay, func() {
		_, _ = d.queue.Push(t)
	})
}

// RetryWaiting re-evaluates every waiting task against current candidate
// supply. The coordinator's scheduler loop calls it once a second; it is
// not triggered by a capability-supply change itself, so a waiting task is
// re-evaluated up to a second after such a change.
func (d *Distributor) RetryWaiting(ctx context.Context) {
	for _, task := range d.waiting.Drain() {
		d.assign(ctx, task)
	}
}

// StealTick lets an Idle agent with an empty deque probe another agent's
// deque for work, within the configured per-tick steal budget. Only
// tasks whose requirements the thief still satisfies are taken. A
// successful steal claims the thief's Idle slot and starts the task
// exactly as a normal assign() would, via runOwned.
func (d *Distributor) StealTick(ctx context.Context, thiefID string) {
	thiefDeque := d.deques.For(thiefID)
	if thiefDeque.Len() > 0 {
		return
	}

	thief, err := d.agents.Get(thiefID)
	if err != nil || thief.State != types.StateIdle {
		return
	}

	for attempt := 0; attempt < d.stealBudget; attempt++ {
		victim, ok := d.deques.RandomVictimExcept(thiefID)
		if !ok {
			return
		}
		task, ok := victim.PopTail()
		if !ok {
			continue
		}
		if !thief.SatisfiesRequirements(task.Requirements) {
			// Put it back; this thief can't run it.
			victim.PushHead(task)
			continue
		}

		if err := d.agents.CompareAndTransition(thiefID, types.StateIdle, types.StateWorking); err != nil {
			// Lost the Idle slot race; leave the task for its original
			// owner or another thief to pick up.
			victim.PushHead(task)
			return
		}

		d.mu.Lock()
		flag := d.cancelFlags[task.ID]
		d.mu.Unlock()

		task.Status = types.TaskStatus{Kind: types.TaskInProgress, AgentID: thiefID, StartedAt: time.Now()}
		thiefDeque.PushHead(task)
		go d.runOwned(ctx, thiefID, flag)
		return
	}
}

// ListTasks returns a snapshot of every task the distributor currently
// knows about — queued, waiting, and in-flight — for the REST GET /tasks
// listing.
func (d *Distributor) ListTasks() []*types.Task {
	out := append(d.queue.List(), d.waiting.List()...)

	d.mu.Lock()
	for _, t := range d.byID {
		out = append(out, t)
	}
	d.mu.Unlock()
	return out
}

// GetTask looks up a single task by id across all three locations.
func (d *Distributor) GetTask(taskID string) (*types.Task, bool) {
	if t, ok := d.queue.GetByID(taskID); ok {
		return t, true
	}
	d.mu.Lock()
	if t, ok := d.byID[taskID]; ok {
		d.mu.Unlock()
		return t, true
	}
	d.mu.Unlock()
	for _, t := range d.waiting.List() {
		if t.ID == taskID {
			return t, true
		}
	}
	return nil, false
}

// SnapshotQueue implements snapshot_queue() from spec.md §4.3.
func (d *Distributor) SnapshotQueue() (prioritySize, waitingSize int, perAgentDequeSizes map[string]int) {
	return d.queue.Len(), d.waiting.Len(), d.deques.Sizes()
}

// ReleaseForRetry re-enters tasks released by an exhausted agent's
// recovery back into the priority queue as Pending, with their retry
// counters incremented (spec.md §4.6's exhaustion handling). Implements
// the resilience.TaskReleaser contract.
func (d *Distributor) ReleaseForRetry(taskIDs []string) error {
	d.mu.Lock()
	var tasks []*types.Task
	for _, id := range taskIDs {
		if t, ok := d.byID[id]; ok {
			tasks = append(tasks, t)
			delete(d.byID, id)
			delete(d.cancelFlags, id)
		}
	}
	d.mu.Unlock()

	for _, t := range tasks {
		t.RetryCount++
		t.Status = types.TaskStatus{Kind: types.TaskPending}
		if _, err := d.queue.Push(t); err != nil {
			return err
		}
	}
	return nil
}
