package mcp

import (
	"testing"

	"github.com/hivecore/hivecore/internal/agentmgr"
)

type fakeHive struct {
	createErr error
	lastSpec  agentmgr.Spec
	lastTask  TaskSpec
	removed   string
	cancelled string
	status    map[string]interface{}
}

func (f *fakeHive) CreateAgent(spec agentmgr.Spec) (string, error) {
	f.lastSpec = spec
	if f.createErr != nil {
		return "", f.createErr
	}
	return "agent-1", nil
}

func (f *fakeHive) RemoveAgent(id string) error {
	f.removed = id
	return nil
}

func (f *fakeHive) SubmitTask(spec TaskSpec) (string, error) {
	f.lastTask = spec
	return "task-1", nil
}

func (f *fakeHive) CancelTask(id string) error {
	f.cancelled = id
	return nil
}

func (f *fakeHive) Status() (interface{}, error) {
	if f.status == nil {
		return map[string]interface{}{"agents": 0}, nil
	}
	return f.status, nil
}

func TestInitializeReportsProtocolVersion(t *testing.T) {
	s := NewServer(&fakeHive{})
	resp := s.Handle(&Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["protocolVersion"] != protocolVersion {
		t.Fatalf("unexpected initialize result: %+v", resp.Result)
	}
}

func TestToolsListIncludesDefaultTools(t *testing.T) {
	s := NewServer(&fakeHive{})
	resp := s.Handle(&Request{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]map[string]interface{})
	if len(tools) < 5 {
		t.Fatalf("expected at least 5 default tools, got %d", len(tools))
	}
}

func TestToolsCallCreateAgent(t *testing.T) {
	hive := &fakeHive{}
	s := NewServer(hive)
	resp := s.Handle(&Request{
		JSONRPC: "2.0", ID: 3, Method: "tools/call",
		Params: map[string]interface{}{
			"name": "create_agent",
			"arguments": map[string]interface{}{
				"name": "Scout",
			},
		},
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if hive.lastSpec.Name != "Scout" {
		t.Fatalf("expected hive.CreateAgent called with name Scout, got %+v", hive.lastSpec)
	}
}

func TestToolsCallUnknownToolReturnsToolError(t *testing.T) {
	s := NewServer(&fakeHive{})
	resp := s.Handle(&Request{
		JSONRPC: "2.0", ID: 4, Method: "tools/call",
		Params: map[string]interface{}{"name": "nonexistent"},
	})
	if resp.Error == nil || resp.Error.Code != CodeToolError {
		t.Fatalf("expected CodeToolError, got %+v", resp.Error)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := NewServer(&fakeHive{})
	resp := s.Handle(&Request{JSONRPC: "2.0", ID: 5, Method: "bogus"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
}

func TestResourcesReadHiveStatus(t *testing.T) {
	hive := &fakeHive{status: map[string]interface{}{"agents": 3}}
	s := NewServer(hive)
	resp := s.Handle(&Request{
		JSONRPC: "2.0", ID: 6, Method: "resources/read",
		Params: map[string]interface{}{"uri": "hive://status"},
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestResourcesReadUnknownURI(t *testing.T) {
	s := NewServer(&fakeHive{})
	resp := s.Handle(&Request{
		JSONRPC: "2.0", ID: 7, Method: "resources/read",
		Params: map[string]interface{}{"uri": "hive://bogus"},
	})
	if resp.Error == nil {
		t.Fatalf("expected an error for unknown resource uri")
	}
}

func TestHandleBytesRoundTrip(t *testing.T) {
	s := NewServer(&fakeHive{})
	out := s.HandleBytes([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	if len(out) == 0 {
		t.Fatal("expected non-empty response bytes")
	}
}

func TestHandleBytesParseError(t *testing.T) {
	s := NewServer(&fakeHive{})
	out := s.HandleBytes([]byte(`not json`))
	if len(out) == 0 {
		t.Fatal("expected non-empty response bytes on parse error")
	}
}
