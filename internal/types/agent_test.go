package types

import "testing"

func TestCapabilityValidate(t *testing.T) {
	cases := []struct {
		name string
		cap  Capability
		ok   bool
	}{
		{"valid", Capability{Name: "analysis", Proficiency: 0.9, LearningRate: 0.1}, true},
		{"empty name", Capability{Name: "", Proficiency: 0.5, LearningRate: 0.1}, false},
		{"proficiency too high", Capability{Name: "x", Proficiency: 1.1, LearningRate: 0.1}, false},
		{"learning rate negative", Capability{Name: "x", Proficiency: 0.5, LearningRate: -0.1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cap.Validate()
			if (err == nil) != c.ok {
				t.Fatalf("Validate() err=%v, want ok=%v", err, c.ok)
			}
		})
	}
}

func TestAgentSatisfiesRequirements(t *testing.T) {
	a := &Agent{Capabilities: []Capability{{Name: "analysis", Proficiency: 0.7, LearningRate: 0.1}}}

	if !a.SatisfiesRequirements([]Requirement{{Name: "analysis", MinProficiency: 0.6}}) {
		t.Fatalf("expected agent to satisfy requirement at or below its proficiency")
	}
	if a.SatisfiesRequirements([]Requirement{{Name: "analysis", MinProficiency: 0.8}}) {
		t.Fatalf("expected agent to fail requirement above its proficiency")
	}
	if a.SatisfiesRequirements([]Requirement{{Name: "unknown", MinProficiency: 0.1}}) {
		t.Fatalf("expected agent to fail requirement for a capability it doesn't have")
	}
	if !a.SatisfiesRequirements(nil) {
		t.Fatalf("an empty requirement list should always be satisfied")
	}
}

func TestAgentStateTransitions(t *testing.T) {
	legal := [][2]AgentState{
		{StateIdle, StateWorking},
		{StateWorking, StateIdle},
		{StateIdle, StateFailed},
		{StateWorking, StateFailed},
		{StateFailed, StateIdle},
		{StateIdle, StateCommunicating},
	}
	for _, pair := range legal {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be legal", pair[0], pair[1])
		}
	}

	illegal := [][2]AgentState{
		{StateFailed, StateWorking},
		{StateFailed, StateCommunicating},
	}
	for _, pair := range illegal {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be illegal", pair[0], pair[1])
		}
	}
}
