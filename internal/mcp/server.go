package mcp

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/types"
)

const protocolVersion = "2024-11-05"

// TaskSpec is submit_task's input, the fields of types.Task a caller may
// set; the Coordinator assigns id/status/timestamps.
type TaskSpec struct {
	Description  string
	Type         string
	Priority     types.Priority
	Requirements []types.Requirement
	Timeout      time.Duration
}

// Hive is the narrow surface of the Coordinator's public operations
// (spec.md §4.1) that the MCP tool set dispatches onto. Defined here,
// not imported from internal/coordinator, so this package has no
// dependency on the top-level wiring (which imports mcp); the
// Coordinator implements this interface directly.
type Hive interface {
	CreateAgent(spec agentmgr.Spec) (string, error)
	RemoveAgent(agentID string) error
	SubmitTask(spec TaskSpec) (string, error)
	CancelTask(taskID string) error
	Status() (interface{}, error)
}

// Server dispatches JSON-RPC 2.0 requests over the five methods spec.md
// §6 names, grounded on the teacher's internal/mcp/server.go
// handleRequest switch, trimmed of its SSE/Streamable-HTTP transport
// (this server is transport-agnostic: Handle accepts/returns Request/
// Response values). No transport is wired to it: cmd/hivecore does not
// serve it over stdio, and internal/server registers no MCP route; the
// Coordinator only builds it and exposes it through MCPServer().
type Server struct {
	hive      Hive
	tools     *ToolRegistry
	resources *ResourceRegistry
}

// NewServer builds the tool and resource registries around hive and
// registers the default hive:// tool/resource set.
func NewServer(hive Hive) *Server {
	s := &Server{hive: hive, tools: NewToolRegistry(), resources: NewResourceRegistry()}
	s.registerDefaultTools()
	s.registerDefaultResources()
	return s
}

// RegisterTool exposes an additional tool beyond the built-in hive set.
func (s *Server) RegisterTool(tool ToolDefinition) {
	s.tools.Register(tool)
}

// RegisterResource exposes an additional hive:// resource.
func (s *Server) RegisterResource(res ResourceDefinition) {
	s.resources.Register(res)
}

// Handle processes one JSON-RPC request and returns its response.
func (s *Server) Handle(req *Request) Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return resultResponse(req.ID, map[string]interface{}{"tools": s.tools.List()})
	case "tools/call":
		return s.handleToolsCall(req)
	case "resources/list":
		return resultResponse(req.ID, map[string]interface{}{"resources": s.resources.List()})
	case "resources/read":
		return s.handleResourcesRead(req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// HandleBytes unmarshals a JSON-RPC request, dispatches it, and
// marshals the response — the shape a stdio or HTTP transport calls.
func (s *Server) HandleBytes(body []byte) []byte {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := errorResponse(nil, CodeParseError, "parse error")
		out, _ := json.Marshal(resp)
		return out
	}
	resp := s.Handle(&req)
	out, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[MCP] failed to marshal response: %v", err)
		fallback := errorResponse(req.ID, CodeInternalError, "failed to marshal response")
		out, _ = json.Marshal(fallback)
	}
	return out
}

func (s *Server) handleInitialize(req *Request) Response {
	return resultResponse(req.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]string{
			"name":    "hivecore",
			"version": "1.0.0",
		},
		"capabilities": map[string]interface{}{
			"tools":     map[string]bool{"listChanged": false},
			"resources": map[string]bool{"listChanged": false},
		},
	})
}

func (s *Server) handleToolsCall(req *Request) Response {
	params, ok := req.Params.(map[string]interface{})
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}
	name, _ := params["name"].(string)
	if name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool name required")
	}
	args, _ := params["arguments"].(map[string]interface{})

	result, err := s.tools.Execute(name, args)
	if err != nil {
		return errorResponse(req.ID, CodeToolError, err.Error())
	}

	text := fmt.Sprintf("%v", result)
	if jsonBytes, err := json.Marshal(result); err == nil {
		text = string(jsonBytes)
	}
	return resultResponse(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	})
}

func (s *Server) handleResourcesRead(req *Request) Response {
	params, ok := req.Params.(map[string]interface{})
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}
	uri, _ := params["uri"].(string)
	if uri == "" {
		return errorResponse(req.ID, CodeInvalidParams, "uri required")
	}
	body, err := s.resources.Read(uri)
	if err != nil {
		return errorResponse(req.ID, CodeToolError, err.Error())
	}
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, "failed to encode resource")
	}
	return resultResponse(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{"uri": uri, "mimeType": "application/json", "text": string(jsonBytes)},
		},
	})
}

func (s *Server) registerDefaultTools() {
	s.tools.Register(ToolDefinition{
		Name:        "create_agent",
		Description: "register a new agent with the hive",
		Parameters: map[string]ParameterDef{
			"name":    {Type: "string", Description: "agent name", Required: true},
			"variant": {Type: "string", Description: "Worker|Coordinator|Learner|Specialist", Required: false},
		},
		Handler: s.toolCreateAgent,
	})
	s.tools.Register(ToolDefinition{
		Name:        "remove_agent",
		Description: "remove an agent from the hive",
		Parameters: map[string]ParameterDef{
			"agent_id": {Type: "string", Description: "agent id", Required: true},
		},
		Handler: s.toolRemoveAgent,
	})
	s.tools.Register(ToolDefinition{
		Name:        "submit_task",
		Description: "submit a task for dispatch",
		Parameters: map[string]ParameterDef{
			"description": {Type: "string", Description: "task description", Required: true},
			"priority":    {Type: "string", Description: "Low|Medium|High|Critical", Required: false},
		},
		Handler: s.toolSubmitTask,
	})
	s.tools.Register(ToolDefinition{
		Name:        "cancel_task",
		Description: "cancel a queued or in-flight task",
		Parameters: map[string]ParameterDef{
			"task_id": {Type: "string", Description: "task id", Required: true},
		},
		Handler: s.toolCancelTask,
	})
	s.tools.Register(ToolDefinition{
		Name:        "hive_status",
		Description: "return a consistent snapshot of hive state",
		Parameters:  map[string]ParameterDef{},
		Handler:     s.toolHiveStatus,
	})
}

func (s *Server) registerDefaultResources() {
	s.resources.Register(ResourceDefinition{
		URI:         "hive://status",
		Name:        "hive status",
		Description: "current hive status snapshot",
		MimeType:    "application/json",
		Handler:     func() (interface{}, error) { return s.hive.Status() },
	})
}

func (s *Server) toolCreateAgent(params map[string]interface{}) (interface{}, error) {
	name, _ := params["name"].(string)
	variant, _ := params["variant"].(string)
	if variant == "" {
		variant = string(types.VariantWorker)
	}
	id, err := s.hive.CreateAgent(agentmgr.Spec{
		Name:    name,
		Variant: types.AgentVariant(variant),
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func (s *Server) toolRemoveAgent(params map[string]interface{}) (interface{}, error) {
	id, _ := params["agent_id"].(string)
	if err := s.hive.RemoveAgent(id); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) toolSubmitTask(params map[string]interface{}) (interface{}, error) {
	description, _ := params["description"].(string)
	priorityStr, _ := params["priority"].(string)
	priority := types.PriorityMedium
	if priorityStr != "" {
		p, err := types.ParsePriority(priorityStr)
		if err != nil {
			return nil, err
		}
		priority = p
	}
	id, err := s.hive.SubmitTask(TaskSpec{Description: description, Priority: priority})
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func (s *Server) toolCancelTask(params map[string]interface{}) (interface{}, error) {
	id, _ := params["task_id"].(string)
	if err := s.hive.CancelTask(id); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) toolHiveStatus(_ map[string]interface{}) (interface{}, error) {
	return s.hive.Status()
}
