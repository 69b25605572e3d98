package learning

import (
	"testing"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

func testAgent() *types.Agent {
	return &types.Agent{
		Energy:     0.8,
		Experience: 5,
		Capabilities: []types.Capability{
			{Name: "analysis", Proficiency: 0.6, LearningRate: 0.1},
		},
	}
}

func TestLearnThenPredictConfident(t *testing.T) {
	s := NewStore(0, nil)
	ctx := Context{Agent: testAgent(), TaskDescription: "analyze quarterly report"}

	for i := 0; i < 5; i++ {
		s.Learn(ctx, 0.9)
	}

	pred := s.Predict(ctx)
	if pred < 0.7 {
		t.Fatalf("expected confident prediction near observed outcome, got %v", pred)
	}
}

func TestPredictFallbackWhenNoPattern(t *testing.T) {
	s := NewStore(0, nil)
	ctx := Context{Agent: testAgent(), TaskDescription: "never seen before", RequiredCapabilities: []types.Requirement{{Name: "analysis", MinProficiency: 0.1}}}

	pred := s.Predict(ctx)
	if pred != 0.6 {
		t.Fatalf("expected fallback to equal the agent's capability proficiency 0.6, got %v", pred)
	}
}

func TestPredictNeverFailsOnUnmatchedCapability(t *testing.T) {
	s := NewStore(0, nil)
	ctx := Context{Agent: testAgent(), TaskDescription: "x", RequiredCapabilities: []types.Requirement{{Name: "unrelated", MinProficiency: 0.5}}}
	pred := s.Predict(ctx)
	if pred != 0 {
		t.Fatalf("expected zero fallback for an unmatched capability, got %v", pred)
	}
}

func TestCleanupRemovesStalePatterns(t *testing.T) {
	s := NewStore(0, nil)
	ctx := Context{Agent: testAgent(), TaskDescription: "stale task"}
	s.Learn(ctx, 0.5)

	if s.Len() != 1 {
		t.Fatalf("expected one pattern after Learn, got %d", s.Len())
	}

	removed := s.Cleanup(time.Now().Add(48*time.Hour), 24*time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 pattern removed by retention, got %d", removed)
	}
	if s.Len() != 0 {
		t.Fatalf("expected store empty after cleanup, got %d", s.Len())
	}
}

func TestCleanupEvictsLowestConfidenceOverCapacity(t *testing.T) {
	s := NewStore(2, nil)
	for i := 0; i < 5; i++ {
		ctx := Context{Agent: testAgent(), TaskDescription: "task variant"}
		// Vary the description slightly so each gets a distinct key.
		ctx.TaskDescription = ctx.TaskDescription + string(rune('a'+i))
		s.Learn(ctx, float64(i)/10.0)
	}
	if s.Len() > 2 {
		t.Fatalf("expected eviction to enforce the cap of 2, got %d", s.Len())
	}
}

func TestFeatureKeyDeterministic(t *testing.T) {
	ctx := Context{Agent: testAgent(), TaskDescription: "same description"}
	k1 := FeatureKey(ctx)
	k2 := FeatureKey(ctx)
	if k1 != k2 {
		t.Fatalf("expected FeatureKey to be deterministic for identical context")
	}
}
