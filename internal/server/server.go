package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/metrics"
	"github.com/hivecore/hivecore/internal/scheduler"
)

// Server is hivecore's external HTTP/WebSocket surface (spec.md §6).
// Grounded on the teacher's internal/server/server.go: a gorilla/mux
// router, a WebSocket Hub, and a graceful Shutdown that stops the Hub's
// loop and client write pumps, then shuts the listener down. Alert
// checking runs on the Coordinator, not here.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub

	agents     *agentmgr.Manager
	dist       *scheduler.Distributor
	collector  *metrics.Collector
	alerts     *metrics.AlertChecker
	bus        *events.Bus

	serverID  string
	startTime time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// Deps bundles the collaborators Server needs; the Coordinator owns and
// constructs each of them and passes the bundle to NewServer.
type Deps struct {
	Agents    *agentmgr.Manager
	Dist      *scheduler.Distributor
	Collector *metrics.Collector
	Alerts    *metrics.AlertChecker
	Bus       *events.Bus
	ServerID  string
}

// NewServer wires the router, the Hub, and every REST/WebSocket route
// named in spec.md §6.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		hub:       NewHub(deps.ServerID),
		agents:    deps.Agents,
		dist:      deps.Dist,
		collector: deps.Collector,
		alerts:    deps.Alerts,
		bus:       deps.Bus,
		serverID:  deps.ServerID,
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(SecurityHeadersMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents", s.handleCreateAgent).Methods("POST")
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{id}", s.handleDeleteAgent).Methods("DELETE")
	api.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods("DELETE")
	api.HandleFunc("/hive/status", s.handleHiveStatus).Methods("GET")
	api.HandleFunc("/hive/metrics", s.handleHiveMetrics).Methods("GET")
	api.HandleFunc("/resources", s.handleResources).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Router exposes the underlying mux.Router, e.g. for tests that want to
// drive requests through httptest.NewServer without a real listener.
func (s *Server) Router() *mux.Router { return s.router }

// Hub exposes the WebSocket hub so the Coordinator can subscribe it to
// the event bus and drive its Run loop.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins serving HTTP on addr and runs until Shutdown is called.
// The metrics/alert sampling loop lives on the Coordinator, not here —
// this only drives the Hub's register/unregister loop and the listener.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	go s.hub.Run(s.stopChan)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and the Hub's background
// loops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
