package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

// AgentRepository is the durability collaborator for types.Agent
// records — a write-behind/read-through contract the in-process Agent
// Manager registry may optionally use (spec.md §9); the registry remains
// the runtime source of truth.
type AgentRepository struct {
	db *sql.DB
}

// Save upserts the full agent record.
func (r *AgentRepository) Save(a *types.Agent) error {
	capsJSON, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities for agent %s: %w", a.ID, err)
	}

	_, err = r.db.Exec(
		`INSERT INTO agents (
			id, name, variant, specialist_domain, state, capabilities_json,
			position_x, position_y, energy, created_at, last_active_at,
			experience, social_links, tasks_completed, tasks_failed,
			average_duration_ns, failure_streak, current_task_type
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, variant=excluded.variant,
		   specialist_domain=excluded.specialist_domain, state=excluded.state,
		   capabilities_json=excluded.capabilities_json,
		   position_x=excluded.position_x, position_y=excluded.position_y,
		   energy=excluded.energy, last_active_at=excluded.last_active_at,
		   experience=excluded.experience, social_links=excluded.social_links,
		   tasks_completed=excluded.tasks_completed, tasks_failed=excluded.tasks_failed,
		   average_duration_ns=excluded.average_duration_ns,
		   failure_streak=excluded.failure_streak,
		   current_task_type=excluded.current_task_type`,
		a.ID, a.Name, a.Variant, a.SpecialistDomain, a.State, string(capsJSON),
		a.Position.X, a.Position.Y, a.Energy, a.CreatedAt, a.LastActiveAt,
		a.Experience, a.SocialLinks, a.TasksCompleted, a.TasksFailed,
		int64(a.AverageDuration), a.FailureStreak, a.CurrentTaskType,
	)
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", a.ID, err)
	}
	return nil
}

// Delete removes the agent row.
func (r *AgentRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM agents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every persisted agent, used to warm the in-process
// registry on startup.
func (r *AgentRepository) LoadAll() ([]*types.Agent, error) {
	rows, err := r.db.Query(`SELECT
		id, name, variant, specialist_domain, state, capabilities_json,
		position_x, position_y, energy, created_at, last_active_at,
		experience, social_links, tasks_completed, tasks_failed,
		average_duration_ns, failure_streak, current_task_type
		FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var out []*types.Agent
	for rows.Next() {
		var a types.Agent
		var capsJSON string
		var specialistDomain, currentTaskType sql.NullString
		var avgDurationNs int64
		var createdAt, lastActiveAt time.Time

		if err := rows.Scan(
			&a.ID, &a.Name, &a.Variant, &specialistDomain, &a.State, &capsJSON,
			&a.Position.X, &a.Position.Y, &a.Energy, &createdAt, &lastActiveAt,
			&a.Experience, &a.SocialLinks, &a.TasksCompleted, &a.TasksFailed,
			&avgDurationNs, &a.FailureStreak, &currentTaskType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}

		if err := json.Unmarshal([]byte(capsJSON), &a.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities for agent %s: %w", a.ID, err)
		}
		a.SpecialistDomain = specialistDomain.String
		a.CurrentTaskType = currentTaskType.String
		a.CreatedAt = createdAt
		a.LastActiveAt = lastActiveAt
		a.AverageDuration = time.Duration(avgDurationNs)

		out = append(out, &a)
	}
	return out, rows.Err()
}
