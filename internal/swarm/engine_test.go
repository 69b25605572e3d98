package swarm

import (
	"testing"

	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/types"
)

func TestTickRestoresEnergyForIdleAgents(t *testing.T) {
	mgr := agentmgr.New(0)
	a, _ := mgr.Register(agentmgr.Spec{Name: "x"})
	_ = mgr.RestoreEnergy(a.ID, -0.5) // drop from full energy

	before, _ := mgr.Get(a.ID)
	e := New(mgr)
	e.Tick(nil)
	after, _ := mgr.Get(a.ID)

	if after.Energy <= before.Energy {
		t.Fatalf("expected idle agent energy to increase, before=%v after=%v", before.Energy, after.Energy)
	}
}

func TestTickDecaysEnergyForWorkingAgents(t *testing.T) {
	mgr := agentmgr.New(0)
	a, _ := mgr.Register(agentmgr.Spec{Name: "x"})
	_ = mgr.TransitionState(a.ID, types.StateWorking)

	before, _ := mgr.Get(a.ID)
	e := New(mgr)
	e.Tick(nil)
	after, _ := mgr.Get(a.ID)

	if after.Energy >= before.Energy {
		t.Fatalf("expected working agent energy to decay, before=%v after=%v", before.Energy, after.Energy)
	}
}

func TestTickSelectsFormationPerPriority(t *testing.T) {
	mgr := agentmgr.New(0)
	_, _ = mgr.Register(agentmgr.Spec{Name: "lead", Variant: types.VariantCoordinator})
	for i := 0; i < 4; i++ {
		_, _ = mgr.Register(agentmgr.Spec{Name: "worker", Variant: types.VariantWorker})
	}

	e := New(mgr)
	formations := e.Tick([]types.Priority{types.PriorityCritical, types.PriorityLow})

	if len(formations) != 2 {
		t.Fatalf("expected one formation per distinct priority, got %d", len(formations))
	}

	var sawStar, sawMesh bool
	for _, f := range formations {
		switch f.Kind {
		case types.FormationStar:
			sawStar = true
			if len(f.AgentIDs) > types.MaxFormationSize(types.FormationStar) {
				t.Fatalf("star formation exceeded its cap")
			}
		case types.FormationMesh:
			sawMesh = true
		}
	}
	if !sawStar || !sawMesh {
		t.Fatalf("expected Critical->Star and Low->Mesh, got %+v", formations)
	}
}

func TestStarFormationReservesOneCoordinatorSlot(t *testing.T) {
	mgr := agentmgr.New(0)
	lead, _ := mgr.Register(agentmgr.Spec{Name: "lead", Variant: types.VariantCoordinator})
	var workerIDs []string
	for i := 0; i < 5; i++ {
		w, _ := mgr.Register(agentmgr.Spec{Name: "worker", Variant: types.VariantWorker})
		workerIDs = append(workerIDs, w.ID)
	}

	e := New(mgr)
	formations := e.Tick([]types.Priority{types.PriorityCritical})
	if len(formations) != 1 {
		t.Fatalf("expected exactly one formation, got %d", len(formations))
	}

	f := formations[0]
	if f.Kind != types.FormationStar {
		t.Fatalf("expected Star formation for Critical priority, got %s", f.Kind)
	}
	if len(f.AgentIDs) != types.MaxFormationSize(types.FormationStar) {
		t.Fatalf("expected Star formation filled to cap %d, got %d", types.MaxFormationSize(types.FormationStar), len(f.AgentIDs))
	}

	var sawLead int
	for _, id := range f.AgentIDs {
		if id == lead.ID {
			sawLead++
		}
	}
	if sawLead != 1 {
		t.Fatalf("expected exactly one coordinator slot filled by %s, saw %d occurrences", lead.ID, sawLead)
	}
}

func TestStarFormationSkippedWithoutIdleCoordinator(t *testing.T) {
	mgr := agentmgr.New(0)
	for i := 0; i < 5; i++ {
		_, _ = mgr.Register(agentmgr.Spec{Name: "worker", Variant: types.VariantWorker})
	}

	e := New(mgr)
	formations := e.Tick([]types.Priority{types.PriorityCritical})
	if len(formations) != 0 {
		t.Fatalf("expected no Star formation without an Idle Coordinator, got %+v", formations)
	}
}

func TestTickWithNoAgentsIsNoop(t *testing.T) {
	mgr := agentmgr.New(0)
	e := New(mgr)
	formations := e.Tick([]types.Priority{types.PriorityHigh})
	if formations != nil {
		t.Fatalf("expected no formations with zero agents, got %+v", formations)
	}
}
