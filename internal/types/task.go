package types

import (
	"fmt"
	"time"
)

// Priority orders tasks in the scheduler's priority queue; higher values
// are dispatched first.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityMedium   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// ParsePriority maps the REST-surface strings onto Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "Low":
		return PriorityLow, nil
	case "Medium":
		return PriorityMedium, nil
	case "High":
		return PriorityHigh, nil
	case "Critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// TaskStatusKind discriminates the Task.Status variant.
type TaskStatusKind string

const (
	TaskPending     TaskStatusKind = "pending"
	TaskAssigned    TaskStatusKind = "assigned"
	TaskInProgress  TaskStatusKind = "in_progress"
	TaskCompleted   TaskStatusKind = "completed"
	TaskFailed      TaskStatusKind = "failed"
	TaskCancelled   TaskStatusKind = "cancelled"
)

// TaskStatus is the tagged-union status carried by a Task. Only the fields
// relevant to Kind are meaningful at any moment.
type TaskStatus struct {
	Kind      TaskStatusKind `json:"kind"`
	AgentID   string         `json:"agent_id,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Result    string         `json:"result,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// validTaskTransitions implements the monotonic-with-one-exception rule
// from spec.md §3: Failed -> Pending is allowed only as a distributor
// retry decision, modeled here as a legal graph edge; the retry-count
// bound is enforced by the scheduler, not by this table.
var validTaskTransitions = map[TaskStatusKind][]TaskStatusKind{
	TaskPending:    {TaskAssigned, TaskCancelled},
	TaskAssigned:   {TaskInProgress, TaskPending, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskFailed, TaskCancelled},
	TaskFailed:     {TaskPending}, // retry
	TaskCompleted:  {},
	TaskCancelled:  {},
}

// CanTransitionTask reports whether moving from -> to is a legal task
// status transition.
func CanTransitionTask(from, to TaskStatusKind) bool {
	if from == to {
		return true
	}
	for _, s := range validTaskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is exclusively owned by the Task Distributor while queued; a
// read-only snapshot is copied to the executing agent during execution.
type Task struct {
	ID           string        `json:"id"`
	Description  string        `json:"description"`
	Type         string        `json:"type"`
	Priority     Priority      `json:"priority"`
	Status       TaskStatus    `json:"status"`
	Requirements []Requirement `json:"requirements"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	RetryCount   int           `json:"retry_count"`
}

// Validate enforces submit_task's input rules (spec.md §4.1).
func (t *Task) Validate() error {
	if t.Description == "" {
		return fmt.Errorf("task description must not be empty")
	}
	if t.Priority < PriorityLow || t.Priority > PriorityCritical {
		return fmt.Errorf("priority %d out of range", t.Priority)
	}
	return nil
}

// Clone returns a deep-enough copy safe to hand to a reader.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Requirements = make([]Requirement, len(t.Requirements))
	copy(cp.Requirements, t.Requirements)
	return &cp
}

// TransitionTo moves the task to newStatus if the edge is legal, bumping
// UpdatedAt. Returns an error describing the illegal edge otherwise.
func (t *Task) TransitionTo(newStatus TaskStatus) error {
	if !CanTransitionTask(t.Status.Kind, newStatus.Kind) {
		return fmt.Errorf("invalid task transition %s -> %s", t.Status.Kind, newStatus.Kind)
	}
	t.Status = newStatus
	t.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether the task can never transition again.
func (t *Task) IsTerminal() bool {
	switch t.Status.Kind {
	case TaskCompleted, TaskCancelled:
		return true
	default:
		return false
	}
}

// ExecutionResult is a bounded-history record of one task execution.
type ExecutionResult struct {
	TaskID   string        `json:"task_id"`
	AgentID  string        `json:"agent_id"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

// ErrorClass categorizes a failure for the retry-policy decision in
// spec.md §4.3.
type ErrorClass int

const (
	ErrorTerminal ErrorClass = iota
	ErrorTransient
)
