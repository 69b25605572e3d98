// Package coordinator wires every hivecore subsystem together and runs
// the background loops spec.md §4.1 names: scheduler tick, swarm tick,
// learning cleanup, and metrics tick. It is the single place that knows
// about every other package, matching the teacher's top-level Server
// struct (internal/server/server.go) which likewise composes the store,
// spawner, mcp server, metrics collector, and notification manager
// behind one constructor.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/hivecore/hivecore/internal/agentmgr"
	"github.com/hivecore/hivecore/internal/bus"
	"github.com/hivecore/hivecore/internal/config"
	"github.com/hivecore/hivecore/internal/events"
	"github.com/hivecore/hivecore/internal/learning"
	"github.com/hivecore/hivecore/internal/mcp"
	"github.com/hivecore/hivecore/internal/metrics"
	"github.com/hivecore/hivecore/internal/persistence"
	"github.com/hivecore/hivecore/internal/resilience"
	"github.com/hivecore/hivecore/internal/scheduler"
	"github.com/hivecore/hivecore/internal/server"
	"github.com/hivecore/hivecore/internal/swarm"
	"github.com/hivecore/hivecore/internal/types"
)

// Coordinator owns the top-level state described by spec.md §4.1. Every
// field is a collaborator built from `cfg`; none of it is package-level
// global state.
type Coordinator struct {
	cfg *config.Config

	db      *persistence.DB
	agents  *agentmgr.Manager
	queue   *scheduler.PriorityQueue
	waiting *scheduler.WaitingSet
	deques  *scheduler.DequeRegistry
	dist    *scheduler.Distributor
	swarmEng *swarm.Engine
	learn   *learning.Store

	breakersMu sync.Mutex
	breakers   map[string]*resilience.Breaker
	recovery   *resilience.Recovery

	collector *metrics.Collector
	alerts    *metrics.AlertChecker

	eventBus *events.Bus
	busSrv   *bus.Server
	busCli   *bus.Client

	httpServer *server.Server
	mcpServer  *mcp.Server

	serverID string

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// resourceProvider samples process-level counters via the standard
// library. No third-party system-metrics library appears anywhere in
// the retrieved pack (the teacher and every sibling repo either skip
// resource sampling entirely or hand-roll it), so runtime.MemStats is
// the only grounded option here — recorded in DESIGN.md.
type resourceProvider struct{}

func (resourceProvider) Sample() types.ResourceSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return types.ResourceSnapshot{
		CPUPercent:   0, // no portable stdlib CPU sampler; left for a pluggable ResourceProvider to override
		MemPercent:   float64(m.Alloc) / float64(m.Sys+1),
		NetworkBytes: 0,
		DiskBytes:    0,
	}
}

// agentCounterProvider adapts the Agent Manager into metrics.AgentCounterProvider.
type agentCounterProvider struct {
	agents *agentmgr.Manager
}

func (p agentCounterProvider) SampleAgentCounters() metrics.AgentCounters {
	counters := make(map[string]types.AgentSubmetric)
	var dispatched, failed int64
	for _, a := range p.agents.List(agentmgr.Filter{}) {
		counters[a.ID] = types.AgentSubmetric{
			TasksCompleted: a.TasksCompleted,
			TasksFailed:    a.TasksFailed,
			Energy:         a.Energy,
		}
		dispatched += a.TasksCompleted + a.TasksFailed
		failed += a.TasksFailed
	}
	return metrics.AgentCounters{Agents: counters, TasksDispatched: dispatched, TasksFailed: failed}
}

// New wires every subsystem from cfg. dbPath is the SQLite file used for
// durable agent/task/pattern state; an empty dbPath runs purely
// in-memory (useful for tests).
func New(cfg *config.Config, dbPath string, serverID string) (*Coordinator, error) {
	c := &Coordinator{
		cfg:      cfg,
		breakers: make(map[string]*resilience.Breaker),
		serverID: serverID,
		stopChan: make(chan struct{}),
	}

	var agentRepo learning.Repository
	if dbPath != "" {
		db, err := persistence.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open persistence db: %w", err)
		}
		c.db = db
		agentRepo = db.PatternRepository()
	}

	c.agents = agentmgr.New(cfg.AgentManager.MaxAgents)
	c.queue = scheduler.NewPriorityQueue(cfg.Queue.SoftCapacity)
	c.waiting = scheduler.NewWaitingSet()
	c.deques = scheduler.NewDequeRegistry()
	c.learn = learning.NewStore(cfg.Learning.MaxPatterns, agentRepo)
	c.eventBus = events.New(0)

	c.swarmEng = swarm.New(c.agents)

	retryPolicy := scheduler.RetryPolicy{
		MaxRetries: cfg.Queue.MaxRetries,
		Base:       cfg.Queue.RetryBase(),
		Max:        cfg.Queue.RetryCap(),
		Factor:     2.0,
	}
	c.dist = scheduler.New(c.queue, c.waiting, c.deques, c.agents, c, c.eventBus, retryPolicy, 3)

	c.recovery = resilience.NewRecovery(c.agents, c.deques, c.dist, resilience.RecoveryPolicy{
		MaxAttempts: cfg.Recovery.MaxAttempts,
		BaseBackoff: cfg.Recovery.BackoffBase(),
		CapBackoff:  cfg.Recovery.BackoffCap(),
	})

	c.collector = metrics.New(resourceProvider{}, agentCounterProvider{agents: c.agents}, cfg.Metrics.BufferLen)
	c.alerts = metrics.NewAlertChecker(metrics.Thresholds{
		CPUWarn:          cfg.Thresholds.CPUWarn,
		CPUCrit:          cfg.Thresholds.CPUCrit,
		MemWarn:          cfg.Thresholds.MemWarn,
		MemCrit:          cfg.Thresholds.MemCrit,
		TaskFailureRateWarn: cfg.Thresholds.FailRateWarn,
		TaskFailureRateCrit: cfg.Thresholds.FailRateCrit,
	}, cfg.Metrics.Suppression())

	busSrv, err := bus.NewServer(bus.ServerConfig{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("build coordination bus: %w", err)
	}
	c.busSrv = busSrv

	c.mcpServer = mcp.NewServer(c)
	c.httpServer = server.NewServer(server.Deps{
		Agents:    c.agents,
		Dist:      c.dist,
		Collector: c.collector,
		Alerts:    c.alerts,
		Bus:       c.eventBus,
		ServerID:  serverID,
	})

	return c, nil
}

// HTTPServer exposes the wired REST/WebSocket server for cmd/hivecore to
// call Start/Shutdown on.
func (c *Coordinator) HTTPServer() *server.Server { return c.httpServer }

// MCPServer exposes the wired JSON-RPC tool server.
func (c *Coordinator) MCPServer() *mcp.Server { return c.mcpServer }

// Start brings up the coordination bus and every background loop, then
// begins bridging event-bus envelopes to the WebSocket hub. It does not
// start the HTTP listener — cmd/hivecore calls HTTPServer().Start
// separately so it can log the bind address and handle ListenAndServe's
// error after the rest of the hive is already ticking.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.busSrv.Start(); err != nil {
		return fmt.Errorf("start coordination bus: %w", err)
	}
	cli, err := bus.NewClient(c.busSrv.URL())
	if err != nil {
		return fmt.Errorf("connect coordination bus client: %w", err)
	}
	c.busCli = cli

	c.wg.Add(5)
	go c.runSchedulerLoop(ctx)
	go c.runSwarmLoop(ctx)
	go c.runLearningCleanupLoop(ctx)
	go c.runMetricsLoop(ctx)
	go c.runEventBridge()

	return nil
}

// Shutdown signals every background loop and the event bridge at once by
// closing stopChan, waits for them until ctx expires, then publishes
// Shutdown on the event bus and closes the coordination bus and the
// database. The loops are not stopped in any particular order, and the
// HTTP server and its hub are not stopped here; cmd/hivecore stops them
// through HTTPServer().Shutdown.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopChan) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[COORDINATOR] shutdown grace period exceeded, aborting stragglers")
	}

	if c.eventBus != nil {
		c.eventBus.Publish(events.Shutdown, nil)
	}
	if c.busCli != nil {
		c.busCli.Close()
	}
	if c.busSrv != nil {
		c.busSrv.Shutdown()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Coordinator) breakerFor(agentID string) *resilience.Breaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	b, ok := c.breakers[agentID]
	if !ok {
		b = resilience.New(c.cfg.Circuit.Threshold, c.cfg.Circuit.RecoveryTimeout())
		c.breakers[agentID] = b
	}
	return b
}

// rngFor the executor's simulated success/failure draw. Each Execute
// call seeds its own source so concurrent executions don't contend on a
// shared global generator.
func newExecRand() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
