package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

type fakeExecutor struct {
	ok  bool
	err string
	delay time.Duration
}

func (f fakeExecutor) Execute(ctx context.Context, agentID string, task *types.Task) types.ExecutionResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.ExecutionResult{TaskID: task.ID, AgentID: agentID, OK: false, Error: "timeout", At: time.Now()}
		}
	}
	return types.ExecutionResult{TaskID: task.ID, AgentID: agentID, OK: f.ok, Error: f.err, At: time.Now()}
}

func newHarness(exec Executor) (*Distributor, *agentmgr.Manager, *events.Bus) {
	mgr := agentmgr.New(0)
	bus := events.New(16)
	d := New(NewPriorityQueue(0), NewWaitingSet(), NewDequeRegistry(), mgr, exec, bus, RetryPolicy{MaxRetries: 3, Base: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}, 3)
	return d, mgr, bus
}

func TestDistributorAssignsToCapableAgent(t *testing.T) {
	d, mgr, bus := newHarness(fakeExecutor{ok: true})
	sub := bus.Subscribe(events.TaskCompleted)
	defer sub.Unsubscribe()

	a, _ := mgr.Register(agentmgr.Spec{Name: "worker", Capabilities: []types.Capability{{Name: "analysis", Proficiency: 0.8, LearningRate: 0.1}}})

	if _, err := d.Enqueue(&types.Task{Description: "go", Priority: types.PriorityHigh, Requirements: []types.Requirement{{Name: "analysis", MinProficiency: 0.5}}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	d.Tick(context.Background(), 5)

	select {
	case ev := <-sub.C:
		if ev.Kind != events.TaskCompleted {
			t.Fatalf("expected TaskCompleted, got %s", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task completion")
	}

	got, err := mgr.Get(a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != types.StateIdle {
		t.Fatalf("expected agent back to Idle after completion, got %s", got.State)
	}
	if got.TasksCompleted != 1 {
		t.Fatalf("expected TasksCompleted=1, got %d", got.TasksCompleted)
	}
}

func TestDistributorParksCapabilityStarvedTask(t *testing.T) {
	d, _, bus := newHarness(fakeExecutor{ok: true})
	sub := bus.Subscribe(events.TaskWaiting)
	defer sub.Unsubscribe()

	_, _ = d.Enqueue(&types.Task{Description: "needs-skill", Priority: types.PriorityMedium, Requirements: []types.Requirement{{Name: "nonexistent", MinProficiency: 0.9}}})
	d.Tick(context.Background(), 5)

	select {
	case ev := <-sub.C:
		if ev.Kind != events.TaskWaiting {
			t.Fatalf("expected TaskWaiting, got %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TaskWaiting event")
	}

	_, waitingSize, _ := d.SnapshotQueue()
	if waitingSize != 1 {
		t.Fatalf("expected 1 task in waiting set, got %d", waitingSize)
	}
}

func TestDistributorRetriesTransientFailure(t *testing.T) {
	d, mgr, bus := newHarness(fakeExecutor{ok: false, err: "timeout"})
	sub := bus.Subscribe(events.TaskFailed)
	defer sub.Unsubscribe()

	_, _ = mgr.Register(agentmgr.Spec{Name: "worker"})
	_, _ = d.Enqueue(&types.Task{Description: "flaky", Priority: types.PriorityHigh})
	d.Tick(context.Background(), 5)

	select {
	case <-sub.C:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TaskFailed event")
	}

	// The retry is scheduled via time.AfterFunc at a few milliseconds;
	// give it room to land back in the queue.
	time.Sleep(50 * time.Millisecond)
	prioritySize, _, _ := d.SnapshotQueue()
	if prioritySize != 1 {
		t.Fatalf("expected transient failure to requeue the task, prioritySize=%d", prioritySize)
	}
}

func TestCancelRemovesQueuedTask(t *testing.T) {
	d, _, _ := newHarness(fakeExecutor{ok: true})
	task := &types.Task{ID: "cancel-me", Description: "x", Priority: types.PriorityLow}
	_, _ = d.Enqueue(task)

	if err := d.Cancel("cancel-me"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	prioritySize, _, _ := d.SnapshotQueue()
	if prioritySize != 0 {
		t.Fatalf("expected cancelled task removed from queue, got size %d", prioritySize)
	}
}

func TestCancelUnknownTaskNotFound(t *testing.T) {
	d, _, _ := newHarness(fakeExecutor{ok: true})
	if err := d.Cancel("missing"); !hiveerr.Is(err, hiveerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStealTickMovesAndExecutesCompatibleTask(t *testing.T) {
	d, mgr, bus := newHarness(fakeExecutor{ok: true})
	sub := bus.Subscribe(events.TaskCompleted)
	defer sub.Unsubscribe()

	victim, _ := mgr.Register(agentmgr.Spec{Name: "victim"})
	thief, _ := mgr.Register(agentmgr.Spec{Name: "thief"})

	task := &types.Task{ID: "stealable", Description: "x"}
	d.mu.Lock()
	d.byID[task.ID] = task
	d.cancelFlags[task.ID] = &cancelFlag{}
	d.mu.Unlock()
	d.deques.For(victim.ID).PushHead(task)

	d.StealTick(context.Background(), thief.ID)

	select {
	case ev := <-sub.C:
		if ev.Kind != events.TaskCompleted {
			t.Fatalf("expected TaskCompleted, got %s", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stolen task to complete")
	}

	if d.deques.For(victim.ID).Len() != 0 {
		t.Fatalf("expected victim deque to be empty after the steal")
	}
	if d.deques.For(thief.ID).Len() != 0 {
		t.Fatalf("expected thief deque to be drained once the stolen task finished executing")
	}

	got, err := mgr.Get(thief.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != types.StateIdle {
		t.Fatalf("expected thief back to Idle after completion, got %s", got.State)
	}
}

func TestStealTickSkipsNonIdleThief(t *testing.T) {
	d, mgr, _ := newHarness(fakeExecutor{ok: true})
	victim, _ := mgr.Register(agentmgr.Spec{Name: "victim"})
	thief, _ := mgr.Register(agentmgr.Spec{Name: "thief"})
	if err := mgr.TransitionState(thief.ID, types.StateWorking); err != nil {
		t.Fatalf("TransitionState: %v", err)
	}

	task := &types.Task{ID: "stealable", Description: "x"}
	d.mu.Lock()
	d.byID[task.ID] = task
	d.cancelFlags[task.ID] = &cancelFlag{}
	d.mu.Unlock()
	d.deques.For(victim.ID).PushHead(task)

	d.StealTick(context.Background(), thief.ID)

	if d.deques.For(victim.ID).Len() != 1 {
		t.Fatalf("expected a non-Idle thief not to steal")
	}
}
