package coordinator

import (
	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/mcp"
	"github.com/hivecore/hivecore/internal/types"
)

// CreateAgent implements spec.md §4.1's create_agent operation and
// satisfies mcp.Hive so the MCP tool server can call it directly.
func (c *Coordinator) CreateAgent(spec agentmgr.Spec) (string, error) {
	agent, err := c.agents.Register(spec)
	if err != nil {
		return "", err
	}
	c.eventBus.Publish(events.AgentRegistered, agent)
	if c.busCli != nil {
		_ = c.busCli.PublishJSON("hivecore.agent.registered", agent)
	}
	return agent.ID, nil
}

// RemoveAgent implements remove_agent: any task this agent currently
// holds is reclassified Pending with its retry counter bumped, then the
// agent record is deleted.
func (c *Coordinator) RemoveAgent(agentID string) error {
	var held []string
	for _, t := range c.dist.ListTasks() {
		if t.Status.AgentID == agentID && !t.IsTerminal() {
			held = append(held, t.ID)
		}
	}
	if len(held) > 0 {
		_ = c.dist.ReleaseForRetry(held)
	}

	if err := c.agents.Remove(agentID); err != nil {
		return err
	}
	c.eventBus.Publish(events.AgentRemoved, map[string]string{"agent_id": agentID})
	if c.busCli != nil {
		_ = c.busCli.PublishJSON("hivecore.agent.removed", map[string]string{"agent_id": agentID})
	}
	return nil
}

// SubmitTask implements submit_task, translating the transport-neutral
// mcp.TaskSpec into a types.Task and enqueueing it on the distributor.
func (c *Coordinator) SubmitTask(spec mcp.TaskSpec) (string, error) {
	priority := spec.Priority
	if priority == 0 {
		priority = types.PriorityMedium
	}
	task := &types.Task{
		Description:  spec.Description,
		Type:         spec.Type,
		Priority:     priority,
		Requirements: spec.Requirements,
		Timeout:      spec.Timeout,
	}
	if err := task.Validate(); err != nil {
		return "", err
	}
	if _, err := c.dist.Enqueue(task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// CancelTask implements cancel_task.
func (c *Coordinator) CancelTask(taskID string) error {
	return c.dist.Cancel(taskID)
}

// Status implements status(): a consistent snapshot of queue depth,
// agent count, and the most recent metric point (spec.md §5's
// consistency rules — every field read under its owning component's own
// lock, composed here without a cross-component lock).
func (c *Coordinator) Status() (interface{}, error) {
	prioritySize, waitingSize, perAgent := c.dist.SnapshotQueue()
	point, _ := c.collector.Latest()
	return map[string]interface{}{
		"server_id":     c.serverID,
		"agent_count":   c.agents.Count(),
		"queue_depth":   prioritySize,
		"waiting_depth": waitingSize,
		"agent_deques":  perAgent,
		"latest_metric": point,
	}, nil
}
