// Package bus embeds a single-node NATS broker used as hivecore's
// internal coordination bus: the Coordinator publishes agent lifecycle
// and recovery notifications onto it (hivecore.agent.* subjects). Nothing
// inside hivecore subscribes to it; the Event Bus (internal/events) is
// fed directly by the Coordinator and the Task Distributor, not from
// this bus. This stays embedded and single-node — never clustered — consistent
// with the "no distributed consensus" non-goal (SPEC_FULL.md §6 Open
// Question #5).
//
// Grounded directly on the teacher's internal/nats/server.go
// (EmbeddedServer wrapping *server.Server with Start/Shutdown/URL) and
// internal/nats/client.go (Client wrapping *nats.Conn with Publish/
// PublishJSON/Subscribe/Request).
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ServerConfig configures the embedded broker.
type ServerConfig struct {
	Port      int
	JetStream bool
	DataDir   string
}

// Server wraps the embedded NATS server, matching the teacher's
// EmbeddedServer shape.
type Server struct {
	server  *server.Server
	config  ServerConfig
	mu      sync.RWMutex
	running bool
}

// NewServer creates an embedded server instance; it is not started yet.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Port <= 0 {
		config.Port = 4222
	}
	if config.JetStream && config.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required when JetStream is enabled")
	}
	return &Server{config: config}, nil
}

// Start brings the embedded broker up and blocks until it is ready for
// connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("bus server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       s.config.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if s.config.JetStream {
		opts.JetStream = true
		opts.StoreDir = s.config.DataDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create embedded bus server: %w", err)
	}
	s.server = ns

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("embedded bus server not ready for connections")
	}
	s.running = true
	return nil
}

// Shutdown gracefully stops the embedded broker.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.server == nil {
		return
	}
	s.server.Shutdown()
	s.server.WaitForShutdown()
	s.running = false
	s.server = nil
}

// URL returns the client connection URL.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", s.config.Port)
}

// IsRunning reports whether the embedded broker is currently up.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
