package mcp

import "fmt"

// ResourceHandler returns the JSON-serializable body for a resource read.
type ResourceHandler func() (interface{}, error)

// ResourceDefinition describes one readable hive:// resource.
type ResourceDefinition struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler
}

// ResourceRegistry holds the hive:// resource namespace.
type ResourceRegistry struct {
	resources map[string]ResourceDefinition
}

// NewResourceRegistry returns an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]ResourceDefinition)}
}

// Register adds or replaces a resource definition.
func (r *ResourceRegistry) Register(res ResourceDefinition) {
	r.resources[res.URI] = res
}

// List returns the resources/list result payload.
func (r *ResourceRegistry) List() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, map[string]interface{}{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		})
	}
	return out
}

// Read dispatches a resources/read invocation by URI.
func (r *ResourceRegistry) Read(uri string) (interface{}, error) {
	res, ok := r.resources[uri]
	if !ok {
		return nil, fmt.Errorf("unknown resource: %s", uri)
	}
	return res.Handler()
}
