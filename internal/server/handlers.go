package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/hiveerr"
	"github.com/hivecore/hivecore/internal/types"
)

const maxPayloadSize = 1 << 20 // 1 MiB, matching the teacher's guard

// respondJSON writes v as a 200 JSON body.
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// respondError writes the {error: {code, message, details?}, timestamp}
// envelope spec.md §6 describes, tagging the response with the teacher's
// X-Error-Type header so clients can branch on error class without
// parsing the body.
func respondError(w http.ResponseWriter, status int, code hiveerr.Code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Type", "hivecore")
	w.WriteHeader(status)
	errBody := map[string]interface{}{"code": code, "message": message}
	if details != nil {
		errBody["details"] = details
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     errBody,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// respondHiveErr maps err through hiveerr.HTTPStatus/CodeOf and writes the
// resulting status/body, the single chokepoint every handler funnels
// domain errors through, so the taxonomy code in the body always matches
// the one HTTPStatus branched on.
func respondHiveErr(w http.ResponseWriter, err error) {
	var he *hiveerr.Error
	var details map[string]any
	if errors.As(err, &he) {
		details = he.Details
	}
	respondError(w, hiveerr.HTTPStatus(err), hiveerr.CodeOf(err), err.Error(), details)
}

type createAgentRequest struct {
	Name             string             `json:"name"`
	Variant          string             `json:"variant"`
	SpecialistDomain string             `json:"specialist_domain"`
	Capabilities     []types.Capability `json:"capabilities"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r, maxPayloadSize)

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, hiveerr.Validation, "invalid request body", nil)
		return
	}

	spec := agentmgr.Spec{
		Name:             req.Name,
		Variant:          types.AgentVariant(req.Variant),
		SpecialistDomain: req.SpecialistDomain,
		Capabilities:     req.Capabilities,
	}
	agent, err := s.agents.Register(spec)
	if err != nil {
		respondHiveErr(w, err)
		return
	}
	respondJSON(w, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := agentmgr.Filter{
		State:   types.AgentState(q.Get("state")),
		Variant: types.AgentVariant(q.Get("variant")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = offset
	}
	respondJSON(w, map[string]interface{}{"agents": s.agents.List(f)})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	agent, err := s.agents.Get(id)
	if err != nil {
		respondHiveErr(w, err)
		return
	}
	respondJSON(w, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.agents.Remove(id); err != nil {
		respondHiveErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTaskRequest struct {
	Description  string             `json:"description"`
	Type         string             `json:"type"`
	Priority     string             `json:"priority"`
	Requirements []types.Requirement `json:"requirements"`
	TimeoutMs    int64              `json:"timeout_ms"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r, maxPayloadSize)

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, hiveerr.Validation, "invalid request body", nil)
		return
	}

	priority := types.PriorityMedium
	if req.Priority != "" {
		p, err := types.ParsePriority(req.Priority)
		if err != nil {
			respondError(w, http.StatusBadRequest, hiveerr.Validation, err.Error(), nil)
			return
		}
		priority = p
	}

	task := &types.Task{
		Description:  req.Description,
		Type:         req.Type,
		Priority:     priority,
		Requirements: req.Requirements,
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	if err := task.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, hiveerr.Validation, err.Error(), nil)
		return
	}

	warn, err := s.dist.Enqueue(task)
	if err != nil {
		respondHiveErr(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"task": task, "queue_warning": warn})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{"tasks": s.dist.ListTasks()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, ok := s.dist.GetTask(id)
	if !ok {
		respondHiveErr(w, hiveerr.TaskNotFound(id))
		return
	}
	respondJSON(w, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.dist.Cancel(id); err != nil {
		respondHiveErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHiveStatus(w http.ResponseWriter, r *http.Request) {
	prioritySize, waitingSize, perAgent := s.dist.SnapshotQueue()
	respondJSON(w, map[string]interface{}{
		"server_id":     s.serverID,
		"uptime_s":      int(time.Since(s.startTime).Seconds()),
		"agent_count":   s.agents.Count(),
		"queue_depth":   prioritySize,
		"waiting_depth": waitingSize,
		"agent_deques":  perAgent,
		"ws_clients":    s.hub.ClientCount(),
	})
}

func (s *Server) handleHiveMetrics(w http.ResponseWriter, r *http.Request) {
	n := 60
	if v, err := strconv.Atoi(r.URL.Query().Get("window")); err == nil && v > 0 {
		n = v
	}
	respondJSON(w, map[string]interface{}{
		"points": s.collector.Window(n),
		"trend":  s.collector.Trend(),
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	point, ok := s.collector.Latest()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, hiveerr.Internal, "no resource sample collected yet", nil)
		return
	}
	respondJSON(w, point)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":    "ok",
		"server_id": s.serverID,
		"uptime_s":  int(time.Since(s.startTime).Seconds()),
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection, sends the protocol Hello, and
// hands the client off to the Hub's read/write pumps (spec.md §6).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, clientSendBuffer)}
	s.hub.register <- client

	hello, _ := json.Marshal(Hello{Type: "hello", ProtocolVersion: protocolVersion, ServerID: s.serverID})
	client.send <- hello

	go client.writePump(s.stopChan)
	go client.readPump()
}
