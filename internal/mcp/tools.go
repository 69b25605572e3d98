package mcp

import "fmt"

// ToolHandler executes a tool call and returns a JSON-serializable result.
type ToolHandler func(params map[string]interface{}) (interface{}, error)

// ParameterDef describes one input-schema property of a tool.
type ParameterDef struct {
	Type        string
	Description string
	Required    bool
}

// ToolDefinition describes one callable MCP tool, matching the teacher's
// ToolRegistry/ToolDefinition/ToolHandler shape in spirit.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]ParameterDef
	Handler     ToolHandler
}

// ToolRegistry holds the set of tools this MCP server exposes.
type ToolRegistry struct {
	tools map[string]ToolDefinition
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolDefinition)}
}

// Register adds or replaces a tool definition.
func (r *ToolRegistry) Register(tool ToolDefinition) {
	r.tools[tool.Name] = tool
}

// List returns the tools/list result payload.
func (r *ToolRegistry) List() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.tools))
	for _, tool := range r.tools {
		props := make(map[string]interface{}, len(tool.Parameters))
		required := []string{}
		for name, def := range tool.Parameters {
			props[name] = map[string]interface{}{
				"type":        def.Type,
				"description": def.Description,
			}
			if def.Required {
				required = append(required, name)
			}
		}
		out = append(out, map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return out
}

// Execute dispatches a tools/call invocation by name.
func (r *ToolRegistry) Execute(name string, params map[string]interface{}) (interface{}, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return tool.Handler(params)
}
