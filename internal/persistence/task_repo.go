package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

// TaskRepository is the durability collaborator for types.Task records.
type TaskRepository struct {
	db *sql.DB
}

// Save upserts the full task record, including its tagged-union status.
func (r *TaskRepository) Save(t *types.Task) error {
	reqsJSON, err := json.Marshal(t.Requirements)
	if err != nil {
		return fmt.Errorf("failed to marshal requirements for task %s: %w", t.ID, err)
	}

	var agentID, reason sql.NullString
	if t.Status.AgentID != "" {
		agentID = sql.NullString{String: t.Status.AgentID, Valid: true}
	}
	if t.Status.Reason != "" {
		reason = sql.NullString{String: t.Status.Reason, Valid: true}
	}

	_, err = r.db.Exec(
		`INSERT INTO tasks (
			id, description, type, priority, status_kind, status_agent_id,
			status_reason, requirements_json, timeout_ns, created_at,
			updated_at, retry_count
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   description=excluded.description, type=excluded.type,
		   priority=excluded.priority, status_kind=excluded.status_kind,
		   status_agent_id=excluded.status_agent_id,
		   status_reason=excluded.status_reason,
		   requirements_json=excluded.requirements_json,
		   timeout_ns=excluded.timeout_ns, updated_at=excluded.updated_at,
		   retry_count=excluded.retry_count`,
		t.ID, t.Description, t.Type, int(t.Priority), string(t.Status.Kind), agentID,
		reason, string(reqsJSON), int64(t.Timeout), t.CreatedAt,
		t.UpdatedAt, t.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// Delete removes the task row.
func (r *TaskRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// LoadPending returns every task whose status is not terminal, used to
// rehydrate the priority queue and waiting set on startup.
func (r *TaskRepository) LoadPending() ([]*types.Task, error) {
	rows, err := r.db.Query(`SELECT
		id, description, type, priority, status_kind, status_agent_id,
		status_reason, requirements_json, timeout_ns, created_at,
		updated_at, retry_count
		FROM tasks
		WHERE status_kind NOT IN (?, ?)`,
		string(types.TaskCompleted), string(types.TaskCancelled))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// LoadAll returns every persisted task regardless of status.
func (r *TaskRepository) LoadAll() ([]*types.Task, error) {
	rows, err := r.db.Query(`SELECT
		id, description, type, priority, status_kind, status_agent_id,
		status_reason, requirements_json, timeout_ns, created_at,
		updated_at, retry_count
		FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*types.Task, error) {
	var out []*types.Task
	for rows.Next() {
		var t types.Task
		var reqsJSON string
		var statusKind string
		var agentID, reason sql.NullString
		var timeoutNs int64
		var priority int
		var createdAt, updatedAt time.Time

		if err := rows.Scan(
			&t.ID, &t.Description, &t.Type, &priority, &statusKind, &agentID,
			&reason, &reqsJSON, &timeoutNs, &createdAt,
			&updatedAt, &t.RetryCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		if err := json.Unmarshal([]byte(reqsJSON), &t.Requirements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal requirements for task %s: %w", t.ID, err)
		}
		t.Priority = types.Priority(priority)
		t.Status = types.TaskStatus{
			Kind:    types.TaskStatusKind(statusKind),
			AgentID: agentID.String,
			Reason:  reason.String,
		}
		t.Timeout = time.Duration(timeoutNs)
		t.CreatedAt = createdAt
		t.UpdatedAt = updatedAt

		out = append(out, &t)
	}
	return out, rows.Err()
}
