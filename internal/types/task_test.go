package types

import "testing"

func TestTaskStatusTransitions(t *testing.T) {
	task := &Task{Status: TaskStatus{Kind: TaskPending}}

	if err := task.TransitionTo(TaskStatus{Kind: TaskAssigned, AgentID: "a1"}); err != nil {
		t.Fatalf("Pending -> Assigned should be legal: %v", err)
	}
	if err := task.TransitionTo(TaskStatus{Kind: TaskInProgress, AgentID: "a1"}); err != nil {
		t.Fatalf("Assigned -> InProgress should be legal: %v", err)
	}
	if err := task.TransitionTo(TaskStatus{Kind: TaskFailed, Reason: "timeout"}); err != nil {
		t.Fatalf("InProgress -> Failed should be legal: %v", err)
	}
	if err := task.TransitionTo(TaskStatus{Kind: TaskPending}); err != nil {
		t.Fatalf("Failed -> Pending (retry) should be legal: %v", err)
	}

	if err := task.TransitionTo(TaskStatus{Kind: TaskCompleted}); err == nil {
		t.Fatalf("Pending -> Completed should be illegal")
	}
}

func TestTaskIsTerminal(t *testing.T) {
	completed := &Task{Status: TaskStatus{Kind: TaskCompleted}}
	if !completed.IsTerminal() {
		t.Fatalf("Completed should be terminal")
	}
	pending := &Task{Status: TaskStatus{Kind: TaskPending}}
	if pending.IsTerminal() {
		t.Fatalf("Pending should not be terminal")
	}
}

func TestTaskValidate(t *testing.T) {
	valid := &Task{Description: "do work", Priority: PriorityHigh}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid task, got %v", err)
	}
	empty := &Task{Description: "", Priority: PriorityHigh}
	if err := empty.Validate(); err == nil {
		t.Fatalf("expected empty description to fail validation")
	}
	badPriority := &Task{Description: "x", Priority: Priority(99)}
	if err := badPriority.Validate(); err == nil {
		t.Fatalf("expected out-of-range priority to fail validation")
	}
}

func TestParsePriority(t *testing.T) {
	for _, s := range []string{"Low", "Medium", "High", "Critical"} {
		if _, err := ParsePriority(s); err != nil {
			t.Errorf("ParsePriority(%q) failed: %v", s, err)
		}
	}
	if _, err := ParsePriority("Bogus"); err == nil {
		t.Errorf("expected ParsePriority to reject unknown string")
	}
}
