// Package scheduler implements the Task Distributor of spec.md §4.3: a
// container/heap priority queue, a waiting set for capability-starved
// tasks, per-agent work-stealing deques, and the dispatch/execute/retry
// algorithm that ties them together.
//
// The teacher's own internal/tasks.Queue resorts a backing slice on every
// mutation (an O(n log n) operation per push/pop). hivecore upgrades this
// to a proper container/heap implementation, required by spec.md §8's
// dispatch-ordering invariant and the "N pops per tick" budget, while
// preserving the teacher's FIFO-within-priority tie-break. The queue's
// own surface is Push/PushFront/PopN/Remove/GetByID/Len/List.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

// item is one entry in the heap: a pointer to the shared Task plus the
// heap's internal bookkeeping index.
type item struct {
	task  *types.Task
	index int
}

// taskHeap orders by (priority desc, created_at asc) — spec.md §4.3.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].task.CreatedAt.Before(h[j].task.CreatedAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// PriorityQueue is the single canonical home for a Pending task before
// assignment (spec.md §4.3's "at most one queue at any time" invariant).
type PriorityQueue struct {
	mu          sync.Mutex
	heap        taskHeap
	byID        map[string]*item
	softCapacity int
}

// NewPriorityQueue creates a queue with the given soft capacity (0 means
// unbounded).
func NewPriorityQueue(softCapacity int) *PriorityQueue {
	return &PriorityQueue{
		byID:         make(map[string]*item),
		softCapacity: softCapacity,
	}
}

// Push inserts task, applying the backpressure rule from spec.md §4.3:
// Low is rejected with QueueFull over capacity; Medium is accepted with a
// caller-visible warning flag; High/Critical always accepted.
func (q *PriorityQueue) Push(task *types.Task) (warn bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	over := q.softCapacity > 0 && len(q.heap) >= q.softCapacity
	if over {
		switch task.Priority {
		case types.PriorityLow:
			return false, hiveerr.New(hiveerr.QueueFull, "priority queue at capacity")
		case types.PriorityMedium:
			warn = true
		}
	}

	it := &item{task: task}
	heap.Push(&q.heap, it)
	q.byID[task.ID] = it
	return warn, nil
}

// PushFront reinserts a task that lost the assignment race, preserving
// its original CreatedAt timestamp so FIFO-within-priority ordering holds
// (spec.md §4.3 step 5). Since the heap orders strictly by
// (priority,created_at), a normal Push already achieves "head of queue"
// semantics for an unchanged timestamp.
func (q *PriorityQueue) PushFront(task *types.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := &item{task: task}
	heap.Push(&q.heap, it)
	q.byID[task.ID] = it
}

// PopN pops up to n tasks in priority order.
func (q *PriorityQueue) PopN(n int) []*types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*types.Task, 0, n)
	for i := 0; i < n && len(q.heap) > 0; i++ {
		it := heap.Pop(&q.heap).(*item)
		delete(q.byID, it.task.ID)
		out = append(out, it.task)
	}
	return out
}

// Remove takes a task out of the queue by id, used by cancel(task_id).
func (q *PriorityQueue) Remove(taskID string) (*types.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[taskID]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byID, taskID)
	return it.task, true
}

// GetByID returns a task still sitting in the queue, if any.
func (q *PriorityQueue) GetByID(taskID string) (*types.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[taskID]
	if !ok {
		return nil, false
	}
	return it.task, true
}

// Len returns the current queue depth.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// List returns a snapshot of every task still sitting in the queue, in
// no particular order — used by the REST GET /tasks listing.
func (q *PriorityQueue) List() []*types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*types.Task, 0, len(q.heap))
	for _, it := range q.heap {
		out = append(out, it.task)
	}
	return out
}

// WaitingSet holds Pending tasks for which find_candidates returned
// empty; Distributor.RetryWaiting re-evaluates it on a fixed 1s cadence.
type WaitingSet struct {
	mu    sync.Mutex
	tasks map[string]*types.Task
}

// NewWaitingSet creates an empty WaitingSet.
func NewWaitingSet() *WaitingSet {
	return &WaitingSet{tasks: make(map[string]*types.Task)}
}

// Add inserts a task into the waiting set.
func (w *WaitingSet) Add(task *types.Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks[task.ID] = task
}

// Remove takes a task out of the waiting set by id.
func (w *WaitingSet) Remove(taskID string) (*types.Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tasks[taskID]
	if ok {
		delete(w.tasks, taskID)
	}
	return t, ok
}

// Drain removes and returns every waiting task, for a capability-supply
// retry pass.
func (w *WaitingSet) Drain() []*types.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*types.Task, 0, len(w.tasks))
	for _, t := range w.tasks {
		out = append(out, t)
	}
	w.tasks = make(map[string]*types.Task)
	return out
}

// Len returns the current waiting-set size.
func (w *WaitingSet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tasks)
}

// List returns a snapshot of every task currently parked, no particular
// order — used by the REST GET /tasks listing.
func (w *WaitingSet) List() []*types.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*types.Task, 0, len(w.tasks))
	for _, t := range w.tasks {
		out = append(out, t)
	}
	return out
}

// backoffDelay implements spec.md §4.3's `base · backoff^n` retry delay,
// capped at max.
func backoffDelay(base, max time.Duration, n int, factor float64) time.Duration {
	d := base
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * factor)
		if d > max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
