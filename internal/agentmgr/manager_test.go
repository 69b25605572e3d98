package agentmgr

import (
	"testing"
	"time"

	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

func TestRegisterAndGet(t *testing.T) {
	m := New(0)
	a, err := m.Register(Spec{Name: "scout-1", Variant: types.VariantWorker})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if a.State != types.StateIdle {
		t.Fatalf("expected newly registered agent to be Idle, got %s", a.State)
	}
	if a.Energy != 1.0 {
		t.Fatalf("expected full energy on registration, got %v", a.Energy)
	}

	got, err := m.Get(a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("Get returned wrong agent")
	}
}

func TestRegisterValidation(t *testing.T) {
	m := New(0)
	if _, err := m.Register(Spec{Name: ""}); err == nil {
		t.Fatalf("expected empty name to fail validation")
	}
	if _, err := m.Register(Spec{Name: "x", Capabilities: []types.Capability{{Name: "a", Proficiency: 2}}}); err == nil {
		t.Fatalf("expected out-of-range capability to fail validation")
	}
}

func TestRegisterAtCapacity(t *testing.T) {
	m := New(1)
	if _, err := m.Register(Spec{Name: "first"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Register(Spec{Name: "second"}); !hiveerr.Is(err, hiveerr.QueueFull) {
		t.Fatalf("expected QueueFull at capacity, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	m := New(0)
	if _, err := m.Get("missing"); !hiveerr.Is(err, hiveerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	m := New(0)
	a, _ := m.Register(Spec{Name: "x"})
	if err := m.Remove(a.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := m.Get(a.ID); !hiveerr.Is(err, hiveerr.NotFound) {
		t.Fatalf("expected agent to be gone after Remove")
	}
	if err := m.Remove(a.ID); !hiveerr.Is(err, hiveerr.NotFound) {
		t.Fatalf("expected second Remove to report NotFound")
	}
}

func TestFindCandidatesFiltersAndOrders(t *testing.T) {
	m := New(0)
	strong, _ := m.Register(Spec{Name: "strong", Capabilities: []types.Capability{{Name: "analysis", Proficiency: 0.9, LearningRate: 0.1}}})
	weak, _ := m.Register(Spec{Name: "weak", Capabilities: []types.Capability{{Name: "analysis", Proficiency: 0.4, LearningRate: 0.1}}})
	_, _ = m.Register(Spec{Name: "unrelated", Capabilities: []types.Capability{{Name: "other", Proficiency: 0.9, LearningRate: 0.1}}})

	// Put one candidate into Working so it's excluded.
	if err := m.TransitionState(weak.ID, types.StateWorking); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	reqs := []types.Requirement{{Name: "analysis", MinProficiency: 0.3}}
	cands := m.FindCandidates(reqs)
	if len(cands) != 1 {
		t.Fatalf("expected exactly 1 idle matching candidate, got %d", len(cands))
	}
	if cands[0].AgentID != strong.ID {
		t.Fatalf("expected strong agent to be the sole candidate")
	}
}

func TestTransitionStateIllegal(t *testing.T) {
	m := New(0)
	a, _ := m.Register(Spec{Name: "x"})
	if err := m.TransitionState(a.ID, types.StateFailed); err != nil {
		t.Fatalf("Idle->Failed should be legal: %v", err)
	}
	if err := m.TransitionState(a.ID, types.StateWorking); !hiveerr.Is(err, hiveerr.Conflict) {
		t.Fatalf("expected Conflict for Failed->Working, got %v", err)
	}
}

func TestCompareAndTransitionRace(t *testing.T) {
	m := New(0)
	a, _ := m.Register(Spec{Name: "x"})

	if err := m.CompareAndTransition(a.ID, types.StateIdle, types.StateWorking); err != nil {
		t.Fatalf("expected first CAS to win: %v", err)
	}
	if err := m.CompareAndTransition(a.ID, types.StateIdle, types.StateWorking); !hiveerr.Is(err, hiveerr.Conflict) {
		t.Fatalf("expected second CAS (stale `from`) to lose with Conflict, got %v", err)
	}
}

func TestUpdateAfterTaskBookkeeping(t *testing.T) {
	m := New(0)
	a, _ := m.Register(Spec{Name: "x", Capabilities: []types.Capability{{Name: "analysis", Proficiency: 0.5, LearningRate: 0.2}}})

	if err := m.UpdateAfterTask(a.ID, Outcome{Success: true, Duration: 10 * time.Millisecond, UsedCapabilities: []string{"analysis"}, TaskType: "analyze"}); err != nil {
		t.Fatalf("UpdateAfterTask failed: %v", err)
	}

	got, _ := m.Get(a.ID)
	if got.TasksCompleted != 1 {
		t.Fatalf("expected TasksCompleted=1, got %d", got.TasksCompleted)
	}
	if got.AverageDuration != 10*time.Millisecond {
		t.Fatalf("expected average duration to equal the single sample, got %v", got.AverageDuration)
	}
	cap := got.CapabilityByName("analysis")
	if cap.Proficiency <= 0.5 {
		t.Fatalf("expected proficiency to increase after successful use, got %v", cap.Proficiency)
	}
	if got.Energy >= 1.0 {
		t.Fatalf("expected energy to net-decrease even on success, got %v", got.Energy)
	}

	if err := m.UpdateAfterTask(a.ID, Outcome{Success: false, Duration: 20 * time.Millisecond}); err != nil {
		t.Fatalf("UpdateAfterTask failed: %v", err)
	}
	got, _ = m.Get(a.ID)
	if got.TasksFailed != 1 {
		t.Fatalf("expected TasksFailed=1, got %d", got.TasksFailed)
	}
}

func TestListFilterAndPagination(t *testing.T) {
	m := New(0)
	for i := 0; i < 5; i++ {
		_, _ = m.Register(Spec{Name: "agent"})
	}
	all := m.List(Filter{})
	if len(all) != 5 {
		t.Fatalf("expected 5 agents, got %d", len(all))
	}
	page := m.List(Filter{Limit: 2, Offset: 1})
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	tooFar := m.List(Filter{Offset: 100})
	if len(tooFar) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(tooFar))
	}
}

func TestRestoreEnergyClips(t *testing.T) {
	m := New(0)
	a, _ := m.Register(Spec{Name: "x"})
	if err := m.RestoreEnergy(a.ID, 5); err != nil {
		t.Fatalf("RestoreEnergy failed: %v", err)
	}
	got, _ := m.Get(a.ID)
	if got.Energy != 1.0 {
		t.Fatalf("expected energy to clip at 1.0, got %v", got.Energy)
	}
}
