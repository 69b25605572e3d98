package scheduler

import (
	"testing"
	"time"

	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

func TestPriorityQueueOrdering(t *testing.T) {
	q := NewPriorityQueue(0)
	base := time.Now()

	low := &types.Task{ID: "low", Priority: types.PriorityLow, CreatedAt: base}
	high := &types.Task{ID: "high", Priority: types.PriorityHigh, CreatedAt: base.Add(time.Second)}
	critical := &types.Task{ID: "crit", Priority: types.PriorityCritical, CreatedAt: base.Add(2 * time.Second)}

	for _, task := range []*types.Task{low, high, critical} {
		if _, err := q.Push(task); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	popped := q.PopN(3)
	if popped[0].ID != "crit" || popped[1].ID != "high" || popped[2].ID != "low" {
		t.Fatalf("expected priority-desc order, got %v %v %v", popped[0].ID, popped[1].ID, popped[2].ID)
	}
}

func TestPriorityQueueFIFOWithinPriority(t *testing.T) {
	q := NewPriorityQueue(0)
	base := time.Now()
	first := &types.Task{ID: "first", Priority: types.PriorityMedium, CreatedAt: base}
	second := &types.Task{ID: "second", Priority: types.PriorityMedium, CreatedAt: base.Add(time.Millisecond)}

	_, _ = q.Push(second)
	_, _ = q.Push(first)

	popped := q.PopN(2)
	if popped[0].ID != "first" {
		t.Fatalf("expected FIFO within equal priority, got %s first", popped[0].ID)
	}
}

func TestPriorityQueueBackpressure(t *testing.T) {
	q := NewPriorityQueue(1)
	_, _ = q.Push(&types.Task{ID: "filler", Priority: types.PriorityLow, CreatedAt: time.Now()})

	if _, err := q.Push(&types.Task{ID: "rejected", Priority: types.PriorityLow, CreatedAt: time.Now()}); !hiveerr.Is(err, hiveerr.QueueFull) {
		t.Fatalf("expected QueueFull for Low over capacity, got %v", err)
	}

	warn, err := q.Push(&types.Task{ID: "medium", Priority: types.PriorityMedium, CreatedAt: time.Now()})
	if err != nil || !warn {
		t.Fatalf("expected Medium to be accepted with a warning flag, got warn=%v err=%v", warn, err)
	}

	if _, err := q.Push(&types.Task{ID: "critical", Priority: types.PriorityCritical, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("expected Critical to always be accepted, got %v", err)
	}
}

func TestPriorityQueueRemove(t *testing.T) {
	q := NewPriorityQueue(0)
	task := &types.Task{ID: "x", Priority: types.PriorityHigh, CreatedAt: time.Now()}
	_, _ = q.Push(task)

	removed, ok := q.Remove("x")
	if !ok || removed.ID != "x" {
		t.Fatalf("expected Remove to find the task")
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after Remove, got %d", q.Len())
	}
	if _, ok := q.Remove("x"); ok {
		t.Fatalf("expected second Remove to report not found")
	}
}

func TestWaitingSetAddDrain(t *testing.T) {
	w := NewWaitingSet()
	w.Add(&types.Task{ID: "a"})
	w.Add(&types.Task{ID: "b"})
	if w.Len() != 2 {
		t.Fatalf("expected 2 waiting tasks, got %d", w.Len())
	}
	drained := w.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected Drain to return both tasks, got %d", len(drained))
	}
	if w.Len() != 0 {
		t.Fatalf("expected waiting set empty after Drain")
	}
}

func TestDequeOwnerPushPopAndSteal(t *testing.T) {
	d := NewDeque("owner")
	d.PushHead(&types.Task{ID: "a"})
	d.PushHead(&types.Task{ID: "b"})

	head, ok := d.PopHead()
	if !ok || head.ID != "b" {
		t.Fatalf("expected owner PopHead to return the most recently pushed task")
	}

	tail, ok := d.PopTail()
	if !ok || tail.ID != "a" {
		t.Fatalf("expected thief PopTail to return the oldest task")
	}
}

func TestDequeRegistrySizesAndClear(t *testing.T) {
	r := NewDequeRegistry()
	r.For("a").PushHead(&types.Task{ID: "t1"})
	r.For("a").PushHead(&types.Task{ID: "t2"})
	r.For("b")

	sizes := r.Sizes()
	if sizes["a"] != 2 || sizes["b"] != 0 {
		t.Fatalf("unexpected deque sizes: %+v", sizes)
	}

	count, ids := r.ClearOwner("a")
	if count != 2 || len(ids) != 2 {
		t.Fatalf("expected ClearOwner to drain 2 tasks, got count=%d ids=%v", count, ids)
	}
	if r.For("a").Len() != 0 {
		t.Fatalf("expected deque empty after ClearOwner")
	}
}
